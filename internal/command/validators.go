// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package command

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/staranto/assetcache/internal/config"
	"github.com/staranto/assetcache/internal/output"
)

type FlagValidatorType func(any) error

func FlagValidators(value any, validators ...FlagValidatorType) error {
	for _, v := range validators {
		if err := v(value); err != nil {
			return err
		}
	}
	return nil
}

// JammedFlagValidator verifies that the arg following a flag does not begin
// with '--'.  urfave/cli allows this and I don't see how to turn it off.
func JammedFlagValidator(value any) error {
	if s, ok := value.(string); ok && strings.HasPrefix(s, "--") {
		return errors.New("must not begin with '--'")
	}
	return nil
}

func OutputValidator(value any) error {
	if !slices.Contains(output.Formats, fmt.Sprint(value)) {
		return fmt.Errorf("must be one of %v", output.Formats)
	}
	return nil
}

func StoreKindValidator(value any) error {
	if !slices.Contains(config.StoreKinds, fmt.Sprint(value)) {
		return fmt.Errorf("must be one of %v", config.StoreKinds)
	}
	return nil
}

// URLValidator accepts absolute http(s) URLs only.
func URLValidator(value any) error {
	s := fmt.Sprint(value)
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return errors.New("must be an http or https URL")
	}
	return nil
}
