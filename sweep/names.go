package sweep

// kind prefixes every blob a sweep writes.
const kind = "_faiss_mask_flat"

// Outputs names the blobs written for one temperature.
type Outputs struct {
	Probs string
	KNNs  string
	Dists string
}

// OutputNames returns the blob names for temperature t. The names carry a
// trailing .npy after the temperature, the way numpy's save names a file
// that does not already end in .npy.
func OutputNames(name string, t float64, c Compression) Outputs {
	temp := FormatTemperature(t) + ".npy" + c.Suffix()
	return Outputs{
		Probs: name + kind + ".npy" + temp,
		KNNs:  name + kind + "_knns.npy" + temp,
		Dists: name + kind + "_dists.npy" + temp,
	}
}

// HitsName returns the name of the retrieval hit bitmap.
func HitsName(name string) string {
	return name + kind + "_hits.roaring"
}

// ManifestName returns the name of the run manifest.
func ManifestName(name string) string {
	return name + kind + "_manifest.json"
}

// CommitPrefix is the marker prefix used with a blob commit log.
func CommitPrefix(name string) string {
	return name + kind + "_commits/"
}
