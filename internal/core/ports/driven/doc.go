// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - SearchStore: chunk persistence plus the hybrid/vector query RPCs
//   - EmbeddingService: text to vector embedding
//   - GenerationService: chat completion, with optional schema-constrained mode
//
// # Optional Interfaces
//
//   - ConfigStore: application configuration
//   - PromptStore: user-editable prompt templates
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
