package pipeline

// SchemaVersion identifies the descriptor schema this build compiles.
// It participates in the config digest, so bumping it re-keys every
// pipeline's identity on purpose.
const SchemaVersion = "1"

// EngineVersion is the runner release recorded with every run row.
const EngineVersion = "0.1.0"
