package feed

import (
	"encoding/json"
	"fmt"

	"tools.zach/dev/cordsync/internal/migrate"
)

func init() {
	migrate.Feed.Register(migrate.Migration{
		Version:     2,
		Description: "rename clientId to appId",
		Upgrade:     renameClientID,
	})
}

// renameClientID moves the v1 "clientId" field to "appId" unless the
// document already carries an appId.
func renameClientID(data []byte) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing v1 feed: %w", err)
	}
	if id, ok := doc["clientId"]; ok {
		if _, exists := doc["appId"]; !exists {
			doc["appId"] = id
		}
		delete(doc, "clientId")
	}
	doc["$version"] = json.RawMessage("2")
	return json.Marshal(doc)
}
