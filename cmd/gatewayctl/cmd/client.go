package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func doRequest(method, path string) ([]byte, error) {
	req, err := http.NewRequest(method, serverAddr+path, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", serverAddr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func printJSON(raw []byte) {
	var pretty map[string]any
	if err := json.Unmarshal(raw, &pretty); err == nil {
		if out, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			fmt.Println(string(out))
			return
		}
	}
	var prettyArr []any
	if err := json.Unmarshal(raw, &prettyArr); err == nil {
		if out, err := json.MarshalIndent(prettyArr, "", "  "); err == nil {
			fmt.Println(string(out))
			return
		}
	}
	fmt.Println(string(raw))
}
