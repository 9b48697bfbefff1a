// Package storage keeps content-addressed blobs for the coordinator: compiled
// policy contract artifacts and archived policy terms documents.
//
// Every blob is identified by the SHA-256 hash of its bytes. Backends are
// selected by location URI:
//
//	file:///var/lib/coordinator/
//	s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix/?region=us-west-2&endpoint=minio:9000
//	ipfs://127.0.0.1:5001/?root=/insurance
//
// Artifacts and terms live in separate namespaces ("artifacts" and "terms")
// under each backend root. Several locations can be combined into a
// MultiStorageBackend which writes to every reachable backend and reads from
// the first one holding the content.
//
// Fetched content is checked against its identifier; a backend returning
// bytes that hash differently is treated as a failed fetch.
package storage
