package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		file   string
		want   string
	}{
		{name: "No prefix", file: "/out/walk_spritesheet.png", want: "abc/walk_spritesheet.png"},
		{name: "Prefix", prefix: "sheets", file: "walk.json", want: "sheets/abc/walk.json"},
		{name: "Slashes trimmed", prefix: "/game/sheets/", file: "out/walk.png", want: "game/sheets/abc/walk.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(tt.prefix, "abc", tt.file))
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", contentType("a.png"))
	assert.Contains(t, contentType("a.json"), "application/json")
	assert.Equal(t, "application/octet-stream", contentType("a.unknownext"))
}

func TestNewStorageRejectsBadEndpoint(t *testing.T) {
	_, err := NewStorage(StorageConfig{Endpoint: "http://has-a-scheme:9000"}, nil)
	require.Error(t, err)

	s, err := NewStorage(StorageConfig{Endpoint: "localhost:9000", Bucket: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", s.bucket)
}
