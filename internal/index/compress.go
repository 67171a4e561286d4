package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Membership codecs. Small groups stay plain JSON so reads are cheap; large
// groups pay one xz pass and shrink by an order of magnitude.
const (
	CodecJSON   = "json"
	CodecJSONXZ = "json+xz"
)

// encodeMembers serializes a member id list, compressing it once the list
// crosses the threshold.
func encodeMembers(ids []int64, threshold int) ([]byte, string, error) {
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, "", err
	}
	if len(ids) <= threshold {
		return raw, CodecJSON, nil
	}

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, "", fmt.Errorf("xz writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), CodecJSONXZ, nil
}

// DecodeMembers reverses encodeMembers for either codec.
func DecodeMembers(data []byte, codec string) ([]int64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	switch codec {
	case CodecJSON, "":
	case CodecJSONXZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		if data, err = io.ReadAll(r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown members codec %q", codec)
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
