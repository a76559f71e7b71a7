package vector

import "hash/fnv"

// remotePointID derives a stable uint64 point id for the remote backend
// from a chunk id. Qdrant points require a uint64 or UUID id, not an
// arbitrary string, so the original chunk id travels in the point payload
// (see remote.go's payloadOriginalIDField) and this hash is only used as
// the point's primary key.
func remotePointID(chunkID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(chunkID))
	return h.Sum64()
}
