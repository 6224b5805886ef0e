package similarity

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cast"

	"github.com/example/go-simscore/internal/params"
	"github.com/example/go-simscore/internal/runtime/tensor"
	"github.com/example/go-simscore/internal/safetensors"
)

// SaveParameters writes fn's parameters to a safetensors file at path. The
// function's Config is stored as string metadata so LoadFunction can rebuild
// it without a separate configuration file.
func SaveParameters(path string, fn Function) error {
	named := fn.Parameters()
	if len(named) == 0 {
		return fmt.Errorf("similarity: %s has no parameters to save", typeOf(fn))
	}

	tensors := make([]safetensors.Tensor, len(named))
	for i, p := range named {
		tensors[i] = safetensors.Tensor{
			Name:  p.Name,
			Shape: p.Tensor.Shape(),
			Data:  p.Tensor.Data(),
		}
	}

	meta, err := configMetadata(fn.Config())
	if err != nil {
		return err
	}

	if err := safetensors.WriteFile(path, tensors, meta); err != nil {
		return err
	}

	slog.Debug("parameters saved", "path", path, "type", typeOf(fn), "tensors", len(tensors))

	return nil
}

// LoadParameters copies parameters stored at path into fn. Every parameter
// of fn must be present with a matching shape.
func LoadParameters(path string, fn Function) error {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		return err
	}
	defer store.Close()

	return LoadParametersFromStore(store, fn)
}

// LoadParametersFromStore is LoadParameters over an open store.
func LoadParametersFromStore(store *safetensors.Store, fn Function) error {
	for _, p := range fn.Parameters() {
		src, err := store.TensorWithShape(p.Name, p.Tensor.Shape())
		if err != nil {
			return fmt.Errorf("similarity: load %s: %w", typeOf(fn), err)
		}

		t, err := tensor.New(src.Data, src.Shape)
		if err != nil {
			return err
		}

		if err := p.Tensor.CopyFrom(t); err != nil {
			return err
		}
	}

	return nil
}

// LoadFunction rebuilds a function from the configuration stored in a
// checkpoint written by SaveParameters and loads its parameters.
func LoadFunction(path string, opts ...Option) (Function, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	meta := store.Metadata()
	if _, ok := meta["type"]; !ok {
		return nil, fmt.Errorf("%w: checkpoint %s has no \"type\" metadata", ErrConfiguration, path)
	}

	values := make(map[string]any, len(meta))
	for k, v := range meta {
		values[k] = v
	}

	fn, err := FromParams(params.New(values), opts...)
	if err != nil {
		return nil, fmt.Errorf("similarity: checkpoint %s: %w", path, err)
	}

	if err := LoadParametersFromStore(store, fn); err != nil {
		return nil, err
	}

	return fn, nil
}

func configMetadata(cfg map[string]any) (map[string]string, error) {
	meta := make(map[string]string, len(cfg))

	for k, v := range cfg {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("similarity: config key %q: %w", k, err)
		}

		meta[k] = s
	}

	return meta, nil
}

func typeOf(fn Function) string {
	if t, ok := fn.Config()["type"]; ok {
		return cast.ToString(t)
	}

	return fmt.Sprintf("%T", fn)
}
