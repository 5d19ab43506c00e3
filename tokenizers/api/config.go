package api

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config holds the special-token names of a tokenizer, as found in a "tokenizer_config.json" file.
//
// Only the fields used to resolve special tokens are parsed, everything else is ignored.
type Config struct {
	BosToken  string `json:"bos_token"`
	EosToken  string `json:"eos_token"`
	UnkToken  string `json:"unk_token"`
	PadToken  string `json:"pad_token"`
	ClsToken  string `json:"cls_token"`
	SepToken  string `json:"sep_token"`
	MaskToken string `json:"mask_token"`
}

// rawConfig accepts special tokens given either as plain strings or as AddedToken objects
// ({"content": "<s>", ...}), both forms are used in the wild.
type rawConfig map[string]json.RawMessage

func (raw rawConfig) token(key string) (string, error) {
	value, found := raw[key]
	if !found || string(value) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(value, &obj); err != nil {
		return "", errors.Wrapf(err, "can't parse %q in tokenizer config", key)
	}
	return obj.Content, nil
}

// ParseConfig parses the contents of a "tokenizer_config.json" file.
func ParseConfig(content []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse tokenizer config")
	}
	config := &Config{}
	fields := []struct {
		key string
		dst *string
	}{
		{"bos_token", &config.BosToken},
		{"eos_token", &config.EosToken},
		{"unk_token", &config.UnkToken},
		{"pad_token", &config.PadToken},
		{"cls_token", &config.ClsToken},
		{"sep_token", &config.SepToken},
		{"mask_token", &config.MaskToken},
	}
	for _, f := range fields {
		value, err := raw.token(f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = value
	}
	return config, nil
}

// LoadConfig reads and parses a "tokenizer_config.json" file.
func LoadConfig(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer config %q", path)
	}
	return ParseConfig(content)
}
