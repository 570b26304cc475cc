// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagValidators(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		validator FlagValidatorType
		wantErr   bool
	}{
		{name: "output text", value: "text", validator: OutputValidator},
		{name: "output yaml", value: "yaml", validator: OutputValidator},
		{name: "output raw rejected", value: "raw", validator: OutputValidator, wantErr: true},
		{name: "store sqlite", value: "sqlite", validator: StoreKindValidator},
		{name: "store redis rejected", value: "redis", validator: StoreKindValidator, wantErr: true},
		{name: "jammed flag", value: "--output", validator: JammedFlagValidator, wantErr: true},
		{name: "not jammed", value: "url@wasm", validator: JammedFlagValidator},
		{name: "https url", value: "https://games.example.com/air/", validator: URLValidator},
		{name: "empty url", value: "", validator: URLValidator},
		{name: "ftp url rejected", value: "ftp://x", validator: URLValidator, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FlagValidators(tt.value, tt.validator)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
