package common

// Environment variable keys
const (
	EnvConfigFile           = "CONFIG_FILE"
	EnvDataPath             = "DATA_PATH"
	EnvExportDir            = "EXPORT_DIR"
	EnvListenPort           = "LISTEN_PORT"
	EnvModelName            = "MODEL_NAME"
	EnvConfidenceThreshold  = "CONFIDENCE_THRESHOLD"
	EnvAnomalyContamination = "ANOMALY_CONTAMINATION"
	EnvConfidenceWeight     = "CONFIDENCE_WEIGHT"
	EnvAnomalyWeight        = "ANOMALY_WEIGHT"
	EnvRejectThreshold      = "REJECT_THRESHOLD"
	EnvTestSize             = "TEST_SIZE"
	EnvHTTPTimeout          = "HTTP_TIMEOUT"
)

// Configuration defaults
const (
	DefaultModelName            = "random_forest"
	DefaultConfidenceThreshold  = 0.7
	DefaultAnomalyContamination = 0.1
	DefaultConfidenceWeight     = 0.6
	DefaultAnomalyWeight        = 0.4
	DefaultRejectThreshold      = 0.8
	DefaultTestSize             = 0.2
	DefaultListenPort           = 8080
	DefaultDataPath             = "labelfix.db"
	DefaultExportDir            = "cleaned_datasets"
	DefaultRandomState          = 42
)

// Validation constants
const (
	MinSamplesForTraining = 10
	WeightSumTolerance    = 1e-3
	MinListenPort         = 1024
	MaxListenPort         = 65535
)
