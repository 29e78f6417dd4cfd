package engine

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// continuationToken is the opaque cursor handed to clients between query pages
type continuationToken struct {
	ContinuationToken string `json:"continuationToken"`
	TotalCount        int    `json:"totalCount"`
}

// encodeToken packs the offset of the next page and the total count of the result set
func encodeToken(offset, total int) string {
	data, _ := json.Marshal(continuationToken{
		ContinuationToken: strconv.Itoa(offset),
		TotalCount:        total,
	})
	return base64.RawURLEncoding.EncodeToString(data)
}

// decodeToken returns the offset stored in a token, an empty token is offset 0
func decodeToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("malformed continuation token: %w", err)
	}
	var t continuationToken
	if err := json.Unmarshal(data, &t); err != nil {
		return 0, fmt.Errorf("malformed continuation token: %w", err)
	}
	offset, err := strconv.Atoi(t.ContinuationToken)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("malformed continuation token offset %q", t.ContinuationToken)
	}
	return offset, nil
}
