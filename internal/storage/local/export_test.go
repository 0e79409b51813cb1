package local

// NewForTest builds a store over root without touching the filesystem.
func NewForTest(root string) *AssetStore {
	return &AssetStore{root: root}
}
