package bucketfile

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/alexshuang/poplibs-sub002/internal/partition"
)

type fileHeader struct {
	Metadata map[string]string
	Tensors  map[string]tensorHeader
}

// UnmarshalJSON splits __metadata__ from the tensor entries.
func (h *fileHeader) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.Tensors = make(map[string]tensorHeader, len(raw))
	for key, value := range raw {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &h.Metadata); err != nil {
				return errors.Wrap(err, "metadata")
			}
			continue
		}
		var t tensorHeader
		if err := json.Unmarshal(value, &t); err != nil {
			return errors.Wrapf(err, "tensor %s", key)
		}
		h.Tensors[key] = t
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidFormat, format, args...)
}

// Read decodes a bucket file and verifies its checksum.
func Read(r io.Reader) (*Buckets, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, invalidf("reading header size: %v", err)
	}
	if headerSize > maxHeaderSize {
		return nil, invalidf("header size %d exceeds %d", headerSize, maxHeaderSize)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, invalidf("reading header: %v", err)
	}
	var h fileHeader
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return nil, invalidf("parsing header: %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading tensor data")
	}

	if h.Metadata[keyFormat] != FormatName {
		return nil, invalidf("format %q, want %q", h.Metadata[keyFormat], FormatName)
	}
	if h.Metadata[keyVersion] != FormatVersion {
		return nil, invalidf("unsupported version %q", h.Metadata[keyVersion])
	}
	if len(h.Tensors) != 2 {
		return nil, invalidf("%d tensors, want %s and %s", len(h.Tensors), MetaInfoTensor, NzTensor)
	}
	mi, ok := h.Tensors[MetaInfoTensor]
	if !ok || mi.DType != "U16" {
		return nil, invalidf("missing U16 tensor %s", MetaInfoTensor)
	}
	nz, ok := h.Tensors[NzTensor]
	if !ok {
		return nil, invalidf("missing tensor %s", NzTensor)
	}
	dt, ok := dtypeFromSafeTensors(nz.DType)
	if !ok {
		return nil, invalidf("unsupported dtype %q for %s", nz.DType, NzTensor)
	}
	if err := validateOffsets(mi, 2, MetaInfoTensor, int64(len(data))); err != nil {
		return nil, err
	}
	if err := validateOffsets(nz, int64(dt.Size()), NzTensor, int64(len(data))); err != nil {
		return nil, err
	}
	if mi.DataOffsets[1] > nz.DataOffsets[0] && nz.DataOffsets[1] > mi.DataOffsets[0] {
		return nil, invalidf("tensors %s and %s overlap", MetaInfoTensor, NzTensor)
	}
	if checksum(data) != h.Metadata[keyChecksum] {
		return nil, ErrChecksumMismatch
	}

	b := &Buckets{
		Config:   partition.DefaultConfig(),
		DataType: dt,
		MetaInfo: make([]partition.MetaInfoType, mi.Shape[0]),
		nz:       bytes.Clone(data[nz.DataOffsets[0]:nz.DataOffsets[1]]),
	}
	if err := yaml.Unmarshal([]byte(h.Metadata[keyConfig]), &b.Config); err != nil {
		return nil, invalidf("parsing config: %v", err)
	}
	for i := range b.MetaInfo {
		b.MetaInfo[i] = binary.LittleEndian.Uint16(data[mi.DataOffsets[0]+2*int64(i):])
	}
	return b, nil
}

// validateOffsets checks that a one-dimensional tensor lies inside the data
// section and that its extent matches its shape.
func validateOffsets(t tensorHeader, elemSize int64, name string, dataSize int64) error {
	begin, end := t.DataOffsets[0], t.DataOffsets[1]
	switch {
	case len(t.Shape) != 1 || t.Shape[0] < 0:
		return invalidf("tensor %s has shape %v, want one dimension", name, t.Shape)
	case begin < 0 || end < begin:
		return invalidf("tensor %s has offsets [%d, %d]", name, begin, end)
	case end > dataSize:
		return invalidf("tensor %s ends at %d beyond data size %d", name, end, dataSize)
	case end-begin != t.Shape[0]*elemSize:
		return invalidf("tensor %s spans %d bytes for %d elements", name, end-begin, t.Shape[0])
	}
	return nil
}

// ReadFile reads the bucket file at path.
func ReadFile(path string) (*Buckets, error) {
	//nolint:gosec // G304: the path is chosen by the user.
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening bucket file")
	}
	defer func() {
		_ = f.Close()
	}()
	b, err := Read(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s", path)
	}
	return b, nil
}
