package models

const AlertTitle = "Fanout Alert"

const (
	AlertDesc_TotalFailure    = "Publish Failed"
	AlertDesc_DeliveryFailure = "Delivery Failed"
	AlertDesc_Failures        = "Multiple Failures"
	AlertDesc_DeadLetterQueue = "Unprocessed Failure"
)

const (
	AlertFmt_TotalFailure    string = "record %s was not accepted by any of %d relays:\n%s"
	AlertFmt_DeliveryFailure string = "delivery to %s failed:\n%s"
	AlertFmt_DeadLetterQueue string = "%s failure could not be alerted:\n%s"
)
