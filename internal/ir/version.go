package ir

// EngineVersion is the flow runtime version, recorded in the saga store.
const EngineVersion = "0.1.0"
