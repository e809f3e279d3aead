package batchgen

// Version is the library version, surfaced by the batchctl version command.
const Version = "0.3.0"
