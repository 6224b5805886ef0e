package safetensors

import "fmt"

// LoadTensors opens path and decodes the named tensors. With no names every
// tensor in the file is returned.
func LoadTensors(path string, names ...string) (map[string]*Tensor, error) {
	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if len(names) == 0 {
		names = store.Names()
	}

	out := make(map[string]*Tensor, len(names))
	for _, name := range names {
		t, err := store.Tensor(name)
		if err != nil {
			return nil, err
		}

		out[name] = t
	}

	return out, nil
}

// LoadRank3 loads a tensor that must be rank 3 ([batch, len, dim]). A rank-2
// tensor is treated as a single batch and reshaped to [1, len, dim].
func LoadRank3(store *Store, name string) (*Tensor, error) {
	t, err := store.Tensor(name)
	if err != nil {
		return nil, err
	}

	switch len(t.Shape) {
	case 2:
		t.Shape = []int64{1, t.Shape[0], t.Shape[1]}
		return t, nil
	case 3:
		return t, nil
	default:
		return nil, fmt.Errorf("safetensors: tensor %q has %dD shape %v, expected 2D or 3D", name, len(t.Shape), t.Shape)
	}
}
