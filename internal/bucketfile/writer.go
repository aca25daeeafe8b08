package bucketfile

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type tensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Write encodes b to w.
func Write(w io.Writer, b *Buckets) error {
	cfg, err := yaml.Marshal(b.Config)
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	data := appendMetaInfo(make([]byte, 0, 2*len(b.MetaInfo)+len(b.nz)), b.MetaInfo)
	miBytes := int64(len(data))
	data = append(data, b.nz...)

	header := map[string]any{
		"__metadata__": map[string]string{
			keyFormat:   FormatName,
			keyVersion:  FormatVersion,
			keyDataType: b.DataType.String(),
			keyConfig:   string(cfg),
			keyChecksum: checksum(data),
		},
		MetaInfoTensor: tensorHeader{
			DType:       "U16",
			Shape:       []int64{int64(len(b.MetaInfo))},
			DataOffsets: [2]int64{0, miBytes},
		},
		NzTensor: tensorHeader{
			DType:       dtypeToSafeTensors(b.DataType),
			Shape:       []int64{int64(b.NumNzValues())},
			DataOffsets: [2]int64{miBytes, int64(len(data))},
		},
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "marshaling header")
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "writing header size")
	}
	if _, err := w.Write(headerJSON); err != nil {
		return errors.Wrap(err, "writing header")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "writing tensor data")
	}
	return nil
}

// WriteFile writes b to a new file at path.
func WriteFile(path string, b *Buckets) (err error) {
	//nolint:gosec // G304: the path is chosen by the user.
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating bucket file")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "closing bucket file")
		}
	}()
	return Write(f, b)
}
