// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/sirupsen/logrus"
)

// InitPlaybookProvider layers tenant rules saved through the API over the
// YAML playbook file, which in turn falls back to the built-in table.
//
// ============================================================
// DEVELOPER: Playbook resolution order
// ============================================================
// For each tenant the first source that has rules wins:
// 1. rules saved with PUT /playbook (stored in the backend)
// 2. tenants: section of PLAYBOOK_PATH
// 3. default: section of PLAYBOOK_PATH, or the built-in table
//
// A missing PLAYBOOK_PATH is not an error; an invalid one is.
// ============================================================
func InitPlaybookProvider(path string, source playbook.Source) (playbook.Provider, error) {
	var cfg *playbook.Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			cfg, err = playbook.LoadConfig(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load playbooks from %s: %w", path, err)
			}
			logrus.Infof("loaded playbooks from %s", path)
		} else if errors.Is(err, fs.ErrNotExist) {
			logrus.Infof("no playbook file at %s, using built-in rules", path)
		} else {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	static, err := playbook.NewStaticProvider(cfg)
	if err != nil {
		return nil, err
	}
	logrus.Infof("static playbooks configured for %d tenants", static.TenantCount())

	if source == nil {
		return static, nil
	}
	return playbook.NewStoreProvider(source, static), nil
}
