package amf

import "hash/fnv"

// seededHash32 is 32-bit FNV-1a with a one-byte seed prepended, used for
// the Bloom bit indices. It and hash32 below are the same FNV-1a hash, the
// one hash the package uses everywhere a key needs to become a number
// (spec open question (c)).
func seededHash32(data []byte, seed byte) uint32 {
	h := fnv.New32a()
	h.Write([]byte{seed})
	h.Write(data)
	return h.Sum32()
}

// hash32 hashes data with no seed, used for the Cuckoo primary bucket index
// and any place the source reaches for Python's builtin hash().
func hash32(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}
