package storage_mocks

//go:generate mockgen -source=../store.go -destination=storage_mocks.go -package=storage_mocks

// This file contains the go:generate directive to generate mocks for the store interface.
// To regenerate the mocks, run:
//   go generate ./internal/storage/storage_mocks
