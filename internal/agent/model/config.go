package model

// ================ Config ================
type ConversationConfig struct {
	TTL     string `envconfig:"CONVERSATION_TTL" default:"15m"`
	History struct {
		MaxTurns int `envconfig:"CONVERSATION_HISTORY_MAX_TURNS" default:"6"`
	}
	Mongo struct {
		// MaxCalls caps the aggregation tool loop for one query.
		MaxCalls int `envconfig:"CONVERSATION_MONGO_MAX_CALLS" default:"4"`
	}
	Script struct {
		// MaxRuns caps the generate/execute/revise cycle for one query.
		MaxRuns int `envconfig:"CONVERSATION_SCRIPT_MAX_RUNS" default:"3"`
	}
}

// RouterModelConfig drives the small classification model used by the router
// and the yes/no decision nodes.
type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0"`
}

// WorkerModelConfig drives the generation/synthesis model used for schema
// context, pipeline and script generation, and final answers.
type WorkerModelConfig struct {
	Model       string  `envconfig:"WORKER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"WORKER_MAX_TOKENS" default:"4096"`
	Temperature float32 `envconfig:"WORKER_TEMPERATURE" default:"0.2"`
}

// DocDBConfig points at the external metadata document store REST API.
type DocDBConfig struct {
	BaseURL    string `envconfig:"DOCDB_BASE_URL" required:"true"`
	Database   string `envconfig:"DOCDB_DATABASE" default:"metadata_index"`
	Collection string `envconfig:"DOCDB_COLLECTION" default:"data_assets"`
	APIKey     string `envconfig:"DOCDB_API_KEY"`
	Timeout    int    `envconfig:"DOCDB_TIMEOUT_SECONDS" default:"30"`
}

// SandboxConfig points at the script execution service.
type SandboxConfig struct {
	BaseURL string `envconfig:"SANDBOX_BASE_URL" required:"true"`
	Timeout int    `envconfig:"SANDBOX_TIMEOUT_SECONDS" default:"60"`
}

// SchemaConfig locates the metadata schema description document. When Path is
// empty the embedded default document is used.
type SchemaConfig struct {
	Path string `envconfig:"SCHEMA_DOC_PATH"`
}
