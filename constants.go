package fanout

import "os"

const (
	Env_AwsEndpoint = "AWS_ENDPOINT"
	Env_AwsRegion   = "AWS_REGION"
	Env_DbEndpoint  = "DB_AWS_ENDPOINT"
	Env_Env         = "ENV"
	Env_LogLevel    = "LOG_LEVEL"
)

const (
	Env_PublishMaxAttempts   = "PUBLISH_MAX_ATTEMPTS"
	Env_PublishBackoff       = "PUBLISH_BACKOFF"
	Env_PublishMaxBackoff    = "PUBLISH_MAX_BACKOFF"
	Env_PublishBackoffKind   = "PUBLISH_BACKOFF_STRATEGY"
	Env_PublishTargetTimeout = "PUBLISH_TARGET_TIMEOUT"
	Env_RelayAddresses       = "RELAY_ADDRESSES"
	Env_IpfsRecordTopic      = "IPFS_RECORD_TOPIC"
	Env_IpfsInboxPrefix      = "IPFS_INBOX_TOPIC_PREFIX"
	Env_IpfsInboxAddress     = "IPFS_INBOX_MULTIADDRESS"
	Env_FailureAlertSize     = "FAILURE_ALERT_BATCH_SIZE"
	Env_FailureAlertLinger   = "FAILURE_ALERT_LINGER"
	Env_AuthorId             = "AUTHOR_ID"
	Env_AgeSecretKey         = "AGE_SECRET_KEY"
	Env_AgeRecipients        = "AGE_RECIPIENTS"
)

const (
	EnvTag_Dev  = "dev"
	EnvTag_Prod = "prod"
)

// EnvTag returns the deployment environment used to name queues, tables and buckets.
func EnvTag() string {
	if env, found := os.LookupEnv(Env_Env); found && (len(env) > 0) {
		return env
	}
	return EnvTag_Dev
}
