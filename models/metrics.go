package models

type MetricName string

const (
	MetricName_PublishAttempt         MetricName = "publish_attempt"
	MetricName_PublishTargetSucceeded MetricName = "publish_target_succeeded"
	MetricName_PublishTargetFailed    MetricName = "publish_target_failed"
	MetricName_PublishLatency         MetricName = "publish_latency_ms"
	MetricName_PublishTotalFailure    MetricName = "publish_total_failure"
	MetricName_DeliverySucceeded      MetricName = "delivery_succeeded"
	MetricName_DeliveryFailed         MetricName = "delivery_failed"
	MetricName_DeliveryInvalid        MetricName = "delivery_invalid"
	MetricName_UploadCompleted        MetricName = "upload_completed"
	MetricName_UploadFailed           MetricName = "upload_failed"
	MetricName_MergeConflict          MetricName = "merge_conflict"
	MetricName_FailureMessage         MetricName = "failure_message"
	MetricName_FailureDlqMessage      MetricName = "failure_dlq_message"
	MetricName_TransportError         MetricName = "transport_error"
	MetricName_TransportExpired       MetricName = "transport_expired"
)

const MetricsCallerName = "go-fanout"
