package hyperliquid

import "encoding/json"

// remarshal converts an already-decoded interface{} value into a typed
// struct. The metaAndAssetCtxs response is a heterogeneous two-element
// array, so it has to be decoded in two steps.
func remarshal(src any, dst any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
