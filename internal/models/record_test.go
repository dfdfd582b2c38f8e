package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLItem_FileName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://repository.overheid.nl/frbr/officielepublicaties/gmb/2025/gmb-2025-12345/1/xml/gmb-2025-12345.xml", "gmb-2025-12345.xml"},
		{"https://repository.overheid.nl/frbr/x/item.html?download=1", "item.html"},
		{"https://repository.overheid.nl/frbr/x/", "x"},
		{"https://repository.overheid.nl", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, URLItem{URL: tt.url}.FileName(), tt.url)
	}
}

func TestRecord_IsEmpty(t *testing.T) {
	assert.True(t, Record{Content: " \n\t"}.IsEmpty())
	assert.False(t, Record{Content: "Besluit"}.IsEmpty())
}
