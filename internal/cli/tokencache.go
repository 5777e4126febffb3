package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tekton-fabric/core/urp"
)

// tokenCacheDir returns $TEKTON_ROOT/.tekton/tokens, the directory register
// writes a component's live token to so a later, separate unregister
// invocation can find it. TEKTON_ROOT has no other purpose for tektonctl.
func tokenCacheDir(root string) string {
	return filepath.Join(root, ".tekton", "tokens")
}

func tokenCachePath(root, componentID string) string {
	return filepath.Join(tokenCacheDir(root), componentID+".json")
}

func saveToken(root, componentID string, token *urp.RegistrationToken) error {
	dir := tokenCacheDir(root)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token cache dir: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode cached token: %w", err)
	}
	if err := os.WriteFile(tokenCachePath(root, componentID), data, 0o600); err != nil {
		return fmt.Errorf("write cached token: %w", err)
	}
	return nil
}

func loadToken(root, componentID string) (*urp.RegistrationToken, error) {
	data, err := os.ReadFile(tokenCachePath(root, componentID))
	if err != nil {
		return nil, fmt.Errorf("no cached token for %s (register it first): %w", componentID, err)
	}
	var token urp.RegistrationToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return &token, nil
}

func removeToken(root, componentID string) {
	_ = os.Remove(tokenCachePath(root, componentID))
}
