// Package services implements the core RAG pipeline behind the driving
// ports: chunking, indexing, hybrid retrieval, multi-query expansion,
// reranking, and citation-grounded orchestration.
//
// Services depend only on domain types and driven ports; all provider and
// storage specifics live in internal/adapters.
package services
