/*
Package domain defines the core value types of the batch generation pipeline:
generation parameters, beats, artifacts, scratch sessions, placement slots,
the failure taxonomy, and the lifecycle event hooks consumed by hosts.

Types here are plain data with no dependency on the runtime; adapters and the
orchestrator communicate exclusively through them.
*/
package domain
