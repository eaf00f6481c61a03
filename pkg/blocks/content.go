// Package blocks provides the discriminated content-block and message model
// shared by the agent runtime, the streaming assembler, and the multi-agent
// executors.
package blocks

import (
	"encoding/json"
	"fmt"
)

// ContentBlockKind discriminates the concrete type behind a ContentBlock.
type ContentBlockKind string

const (
	KindText         ContentBlockKind = "text"
	KindReasoning    ContentBlockKind = "reasoning"
	KindToolUse      ContentBlockKind = "tool_use"
	KindToolResult   ContentBlockKind = "tool_result"
	KindImage        ContentBlockKind = "image"
	KindVideo        ContentBlockKind = "video"
	KindDocument     ContentBlockKind = "document"
	KindCachePoint   ContentBlockKind = "cache_point"
	KindGuardContent ContentBlockKind = "guard_content"
)

// ContentBlock is the sum type every message content entry implements.
// Concrete types never embed each other; branches over Kind() should be
// exhaustive.
type ContentBlock interface {
	Kind() ContentBlockKind
}

// TextBlock carries plain assistant or user text.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) Kind() ContentBlockKind { return KindText }

// ReasoningBlock carries a model's chain-of-thought output. RedactedBytes is
// preserved unchanged when the provider redacts reasoning content.
type ReasoningBlock struct {
	Text          string `json:"text,omitempty"`
	Signature     string `json:"signature,omitempty"`
	RedactedBytes []byte `json:"redacted_bytes,omitempty"`
}

func (ReasoningBlock) Kind() ContentBlockKind { return KindReasoning }

// ToolUseBlock is a model request to invoke a tool.
type ToolUseBlock struct {
	Name       string          `json:"name"`
	ToolUseID  string          `json:"tool_use_id"`
	Input      json.RawMessage `json:"input"`
}

func (ToolUseBlock) Kind() ContentBlockKind { return KindToolUse }

// ToolResultStatus is the outcome of a tool invocation.
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultError   ToolResultStatus = "error"
)

// ToolResultContent is one entry of a tool result's content list.
type ToolResultContent interface {
	toolResultContent()
}

// ToolResultText is plain text tool output.
type ToolResultText struct {
	Text string `json:"text"`
}

func (ToolResultText) toolResultContent() {}

// ToolResultJSON is structured tool output.
type ToolResultJSON struct {
	JSON json.RawMessage `json:"json"`
}

func (ToolResultJSON) toolResultContent() {}

// ToolResultImage is image tool output.
type ToolResultImage struct {
	Source MediaSource `json:"source"`
}

func (ToolResultImage) toolResultContent() {}

// ToolResultDocument is document tool output.
type ToolResultDocument struct {
	Source MediaSource `json:"source"`
}

func (ToolResultDocument) toolResultContent() {}

// ToolResultBlock closes the loop on a ToolUseBlock with the same ToolUseID.
type ToolResultBlock struct {
	ToolUseID string              `json:"tool_use_id"`
	Status    ToolResultStatus    `json:"status"`
	Content   []ToolResultContent `json:"content"`
}

func (ToolResultBlock) Kind() ContentBlockKind { return KindToolResult }

// NewErrorToolResult builds an error ToolResultBlock with a single text
// message — the shape used by the loop when a tool is missing or cancelled.
func NewErrorToolResult(toolUseID, message string) ToolResultBlock {
	return ToolResultBlock{
		ToolUseID: toolUseID,
		Status:    ToolResultError,
		Content:   []ToolResultContent{ToolResultText{Text: message}},
	}
}

// NewSuccessTextResult builds a successful ToolResultBlock carrying plain text.
func NewSuccessTextResult(toolUseID, text string) ToolResultBlock {
	return ToolResultBlock{
		ToolUseID: toolUseID,
		Status:    ToolResultSuccess,
		Content:   []ToolResultContent{ToolResultText{Text: text}},
	}
}

// MediaSourceKind discriminates the exclusivity variant of a MediaSource.
type MediaSourceKind string

const (
	MediaSourceBytes MediaSourceKind = "bytes"
	MediaSourceURL   MediaSourceKind = "url"
	MediaSourceS3    MediaSourceKind = "s3"
	MediaSourceFile  MediaSourceKind = "file_id"
)

// S3Location addresses an object in S3-compatible storage.
type S3Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// MediaSource is exactly one of Bytes, URL, S3Location, or FileID. Use the
// NewMediaSourceFrom* constructors to build a populated value; the zero value
// is invalid.
type MediaSource struct {
	kind   MediaSourceKind
	bytes  []byte
	url    string
	s3     S3Location
	fileID string
}

func NewMediaSourceFromBytes(b []byte) MediaSource {
	return MediaSource{kind: MediaSourceBytes, bytes: append([]byte(nil), b...)}
}

func NewMediaSourceFromURL(url string) MediaSource {
	return MediaSource{kind: MediaSourceURL, url: url}
}

func NewMediaSourceFromS3(loc S3Location) MediaSource {
	return MediaSource{kind: MediaSourceS3, s3: loc}
}

func NewMediaSourceFromFileID(id string) MediaSource {
	return MediaSource{kind: MediaSourceFile, fileID: id}
}

func (m MediaSource) Kind() MediaSourceKind { return m.kind }
func (m MediaSource) Bytes() []byte         { return m.bytes }
func (m MediaSource) URL() string           { return m.url }
func (m MediaSource) S3() S3Location        { return m.s3 }
func (m MediaSource) FileID() string        { return m.fileID }

// Valid reports whether exactly one source variant is populated.
func (m MediaSource) Valid() bool {
	switch m.kind {
	case MediaSourceBytes, MediaSourceURL, MediaSourceS3, MediaSourceFile:
		return true
	default:
		return false
	}
}

// ImageBlock, VideoBlock, DocumentBlock share the same source-exclusivity
// shape; they are kept as distinct types so Kind() discriminates correctly.
type ImageBlock struct {
	Format string      `json:"format,omitempty"`
	Source MediaSource `json:"source"`
}

func (ImageBlock) Kind() ContentBlockKind { return KindImage }

type VideoBlock struct {
	Format string      `json:"format,omitempty"`
	Source MediaSource `json:"source"`
}

func (VideoBlock) Kind() ContentBlockKind { return KindVideo }

type DocumentBlock struct {
	Name   string      `json:"name,omitempty"`
	Format string      `json:"format,omitempty"`
	Source MediaSource `json:"source"`
}

func (DocumentBlock) Kind() ContentBlockKind { return KindDocument }

// NewImageBlock validates source-exclusivity before returning a block.
func NewImageBlock(format string, source MediaSource) (ImageBlock, error) {
	if !source.Valid() {
		return ImageBlock{}, fmt.Errorf("blocks: image source must populate exactly one of bytes/url/s3/file_id")
	}
	return ImageBlock{Format: format, Source: source}, nil
}

// NewDocumentBlock validates source-exclusivity before returning a block.
func NewDocumentBlock(name, format string, source MediaSource) (DocumentBlock, error) {
	if !source.Valid() {
		return DocumentBlock{}, fmt.Errorf("blocks: document source must populate exactly one of bytes/url/s3/file_id")
	}
	return DocumentBlock{Name: name, Format: format, Source: source}, nil
}

// CachePointBlock is an opaque passthrough marker the assembler never
// inspects, only forwards.
type CachePointBlock struct {
	CacheType string `json:"cache_type,omitempty"`
}

func (CachePointBlock) Kind() ContentBlockKind { return KindCachePoint }

// GuardContentBlock is an opaque passthrough marker, same contract as
// CachePointBlock.
type GuardContentBlock struct {
	Fields json.RawMessage `json:"fields,omitempty"`
}

func (GuardContentBlock) Kind() ContentBlockKind { return KindGuardContent }
