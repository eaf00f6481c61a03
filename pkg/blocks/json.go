package blocks

import (
	"encoding/json"
	"fmt"
)

// kindEnvelope is the wire shape every ContentBlock round-trips through:
// the discriminator plus whatever the concrete type contributes via its own
// json tags, flattened into one object.
type kindEnvelope struct {
	Kind ContentBlockKind `json:"kind"`
}

// mediaSourceWire is the JSON-visible shape of a MediaSource; binary bytes
// are base64-encoded by encoding/json's native []byte handling.
type mediaSourceWire struct {
	Kind   MediaSourceKind `json:"kind"`
	Bytes  []byte          `json:"bytes,omitempty"`
	URL    string          `json:"url,omitempty"`
	S3     *S3Location     `json:"s3,omitempty"`
	FileID string          `json:"file_id,omitempty"`
}

func (m MediaSource) MarshalJSON() ([]byte, error) {
	w := mediaSourceWire{Kind: m.kind}
	switch m.kind {
	case MediaSourceBytes:
		w.Bytes = m.bytes
	case MediaSourceURL:
		w.URL = m.url
	case MediaSourceS3:
		loc := m.s3
		w.S3 = &loc
	case MediaSourceFile:
		w.FileID = m.fileID
	}
	return json.Marshal(w)
}

func (m *MediaSource) UnmarshalJSON(data []byte) error {
	var w mediaSourceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case MediaSourceBytes:
		*m = NewMediaSourceFromBytes(w.Bytes)
	case MediaSourceURL:
		*m = NewMediaSourceFromURL(w.URL)
	case MediaSourceS3:
		if w.S3 == nil {
			return fmt.Errorf("blocks: s3 media source missing location")
		}
		*m = NewMediaSourceFromS3(*w.S3)
	case MediaSourceFile:
		*m = NewMediaSourceFromFileID(w.FileID)
	default:
		return fmt.Errorf("blocks: unknown media source kind %q", w.Kind)
	}
	return nil
}

// MarshalContentBlock serializes a ContentBlock into its flattened
// discriminated-union wire form.
func MarshalContentBlock(b ContentBlock) ([]byte, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kindBytes, err := json.Marshal(b.Kind())
	if err != nil {
		return nil, err
	}
	fields["kind"] = kindBytes
	return json.Marshal(fields)
}

// UnmarshalContentBlock decodes a flattened discriminated-union block back
// into its concrete type.
func UnmarshalContentBlock(data []byte) (ContentBlock, error) {
	var env kindEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case KindText:
		var v TextBlock
		return v, json.Unmarshal(data, &v)
	case KindReasoning:
		var v ReasoningBlock
		return v, json.Unmarshal(data, &v)
	case KindToolUse:
		var v ToolUseBlock
		return v, json.Unmarshal(data, &v)
	case KindToolResult:
		return unmarshalToolResultBlock(data)
	case KindImage:
		var v ImageBlock
		return v, json.Unmarshal(data, &v)
	case KindVideo:
		var v VideoBlock
		return v, json.Unmarshal(data, &v)
	case KindDocument:
		var v DocumentBlock
		return v, json.Unmarshal(data, &v)
	case KindCachePoint:
		var v CachePointBlock
		return v, json.Unmarshal(data, &v)
	case KindGuardContent:
		var v GuardContentBlock
		return v, json.Unmarshal(data, &v)
	default:
		return nil, fmt.Errorf("blocks: unknown content block kind %q", env.Kind)
	}
}

type toolResultBlockWire struct {
	ToolUseID string            `json:"tool_use_id"`
	Status    ToolResultStatus  `json:"status"`
	Content   []json.RawMessage `json:"content"`
}

type toolResultContentWire struct {
	Kind string `json:"kind"`
}

// UnmarshalToolResultBlock decodes the wire shape produced by
// ToolResultBlock.MarshalJSON back into a ToolResultBlock, for callers that
// persist a single result outside the enclosing Message (e.g. the interrupt
// package's saved-tool-result cache).
func UnmarshalToolResultBlock(data []byte) (ToolResultBlock, error) {
	cb, err := unmarshalToolResultBlock(data)
	if err != nil {
		return ToolResultBlock{}, err
	}
	return cb.(ToolResultBlock), nil
}

func unmarshalToolResultBlock(data []byte) (ContentBlock, error) {
	var w toolResultBlockWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	out := ToolResultBlock{ToolUseID: w.ToolUseID, Status: w.Status}
	for _, raw := range w.Content {
		var tag toolResultContentWire
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, err
		}
		switch tag.Kind {
		case "text":
			var v ToolResultText
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out.Content = append(out.Content, v)
		case "json":
			var v ToolResultJSON
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out.Content = append(out.Content, v)
		case "image":
			var v ToolResultImage
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out.Content = append(out.Content, v)
		case "document":
			var v ToolResultDocument
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out.Content = append(out.Content, v)
		default:
			return nil, fmt.Errorf("blocks: unknown tool result content kind %q", tag.Kind)
		}
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler for ToolResultBlock so its Content
// entries carry their own "kind" discriminator, mirroring ContentBlock.
func (b ToolResultBlock) MarshalJSON() ([]byte, error) {
	wire := struct {
		ToolUseID string            `json:"tool_use_id"`
		Status    ToolResultStatus  `json:"status"`
		Content   []json.RawMessage `json:"content"`
	}{ToolUseID: b.ToolUseID, Status: b.Status}

	for _, c := range b.Content {
		var kind string
		switch c.(type) {
		case ToolResultText:
			kind = "text"
		case ToolResultJSON:
			kind = "json"
		case ToolResultImage:
			kind = "image"
		case ToolResultDocument:
			kind = "document"
		default:
			return nil, fmt.Errorf("blocks: unknown tool result content type %T", c)
		}
		body, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		kindBytes, _ := json.Marshal(kind)
		fields["kind"] = kindBytes
		merged, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		wire.Content = append(wire.Content, merged)
	}
	return json.Marshal(wire)
}

// ContentBlockList marshals/unmarshals a []ContentBlock through the
// discriminated envelope, preserving block order.
type ContentBlockList []ContentBlock

func (l ContentBlockList) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, len(l))
	for i, b := range l {
		raw, err := MarshalContentBlock(b)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
	}
	return json.Marshal(raws)
}

func (l *ContentBlockList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(ContentBlockList, 0, len(raws))
	for _, raw := range raws {
		b, err := UnmarshalContentBlock(raw)
		if err != nil {
			return err
		}
		out = append(out, b)
	}
	*l = out
	return nil
}
