package transfer

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

const MessageTypeMeta = "meta"

// Meta announces a file before its chunks. It travels as a JSON text frame.
type Meta struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	FileType string `json:"fileType"`
	Tagged   bool   `json:"tagged,omitempty"`
}

// control is the envelope used to dispatch text frames by type.
type control struct {
	Type string `json:"type"`
}

// ChunkFrame is a binary chunk carrying its transfer id and byte offset.
// It is only used when both sides agreed on tagged framing via Meta.Tagged.
type ChunkFrame struct {
	ID     string `msgpack:"id"`
	Offset int64  `msgpack:"offset"`
	Data   []byte `msgpack:"data"`
}

func encodeMeta(meta Meta) (string, error) {
	meta.Type = MessageTypeMeta
	data, err := json.Marshal(meta)
	if err != nil {
		return "", NewError("marshal meta", err)
	}
	return string(data), nil
}

func EncodeChunk(frame ChunkFrame) ([]byte, error) {
	data, err := msgpack.Marshal(&frame)
	if err != nil {
		return nil, NewError("marshal chunk", err)
	}
	return data, nil
}

func DecodeChunk(data []byte) (*ChunkFrame, error) {
	var frame ChunkFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return nil, NewError("parse chunk", err)
	}
	return &frame, nil
}
