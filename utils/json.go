package utils

import (
	"github.com/buger/jsonparser"
)

func JsonExtractStringOrDefault(json []byte, key string, def string) string {
	value, _, _, err := jsonparser.Get(json, key)
	if err != nil {
		return def
	}
	return string(value)
}
