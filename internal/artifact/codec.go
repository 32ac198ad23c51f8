package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/workbench/internal/model"
)

// DecodeError reports a single artifact file that could not be read or
// decoded. It is a soft failure: batch loads skip the file and continue.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("artifact: decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is (or wraps) a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// DecodeFile reads path and decodes it according to the category format.
// Structured files yield a record, document files yield the raw body.
func DecodeFile(c model.Category, path string) (*model.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	a := &model.Artifact{Category: c.Name, Path: path}
	switch c.Format {
	case model.FormatDocument:
		a.Document = string(data)
	default:
		rec, err := DecodeStructured(path, data)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
		a.Record = rec
	}
	return a, nil
}

// DecodeStructured decodes JSON or YAML (chosen by extension) into a record.
// The top-level value must be a mapping.
func DecodeStructured(path string, data []byte) (map[string]any, error) {
	var raw any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrap(err, "parse yaml")
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, eris.Wrap(err, "parse json")
		}
	}

	rec, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, eris.Errorf("top-level value is %T, want a mapping", raw)
	}
	return rec, nil
}

// normalize converts YAML's map[any]any into map[string]any recursively so
// callers see one shape regardless of the source encoding.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// EncodeStructured writes payload to path as JSON or YAML (by extension).
// The file is written to a temp name in the same directory and renamed so
// readers never observe a partial file.
func EncodeStructured(path string, payload any) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(payload)
	default:
		data, err = json.MarshalIndent(payload, "", "  ")
	}
	if err != nil {
		return eris.Wrapf(err, "artifact: encode %s", path)
	}
	return writeAtomic(path, data)
}

// EncodeDocument writes a document body to path atomically.
func EncodeDocument(path, body string) error {
	return writeAtomic(path, []byte(body))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "artifact: mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return eris.Wrap(err, "artifact: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "artifact: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "artifact: close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "artifact: rename to %s", path)
	}
	return nil
}
