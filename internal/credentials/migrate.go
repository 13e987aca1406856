package credentials

import (
	"crypto/subtle"

	"github.com/zx06/plurcast/internal/errors"
)

// MigrationFailure 是单条凭据的迁移失败，Reason 只包含错误码与说明，不含凭据值。
type MigrationFailure struct {
	Ref    Ref         `json:"ref" yaml:"ref"`
	Code   errors.Code `json:"code" yaml:"code"`
	Reason string      `json:"reason" yaml:"reason"`
}

// MigrationReport 是一次迁移的结果，不落盘。
type MigrationReport struct {
	Migrated []Ref              `json:"migrated" yaml:"migrated"`
	Skipped  []Ref              `json:"skipped" yaml:"skipped"`
	Failed   []MigrationFailure `json:"failed" yaml:"failed"`
	// Conflicts 是 Skipped 中安全副本与明文值不同的条目：安全副本保留，明文文件不会被清理。
	Conflicts []Ref `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
}

func (r *MigrationReport) Total() int {
	return len(r.Migrated) + len(r.Skipped) + len(r.Failed)
}

func (r *MigrationReport) HasFailures() bool {
	return len(r.Failed) > 0
}

// Err 在存在失败项时返回 PLURCAST_MIGRATION_FAILED，供 CLI 决定退出码。
func (r *MigrationReport) Err() *errors.XError {
	if !r.HasFailures() {
		return nil
	}
	refs := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		refs[i] = f.Ref.String()
	}
	return errors.New(errors.CodeMigrationFailed, "some credentials could not be migrated",
		map[string]any{"failed": refs})
}

func (r *MigrationReport) fail(ref Ref, msg string, err error) {
	f := MigrationFailure{Ref: ref, Code: errors.CodeMigrationFailed, Reason: msg}
	if err != nil {
		xe := errors.AsOrWrap(err)
		f.Code = xe.Code
		f.Reason = msg + ": " + xe.Message
	}
	r.Failed = append(r.Failed, f)
}

// secureBackends 返回除明文后端以外的后端（保持优先级）。
func (m *Manager) secureBackends() []Store {
	var out []Store
	for _, b := range m.backends {
		if _, ok := b.(*PlainStore); ok {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (m *Manager) requireSecurePrimary() error {
	if m.plain == nil || len(m.backends) == 0 {
		return errors.New(errors.CodeNoStoreAvailable, "no plaintext backend configured to migrate from", nil)
	}
	if _, isPlain := m.backends[0].(*PlainStore); isPlain {
		return errors.New(errors.CodeNoStoreAvailable,
			"no secure backend configured; select keyring or encrypted storage before migrating",
			map[string]any{"backend": m.backends[0].BackendName()})
	}
	return nil
}

func sameSecret(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MigrateFromPlain 把所有遗留明文凭据复制到当前首选的安全后端。
//
// 每条凭据经 StoreAccount 写入后，只从安全后端重新读取并逐字节比较，一致才算 Migrated；
// 安全后端已持有该凭据的一律记为 Skipped，绝不覆盖（重复运行是幂等的）。
// 值不同的额外记入 Conflicts：安全副本通常是之后 set 轮换过的新值。
// 单条失败只记录到报告，不会中止整批，也绝不修改或删除明文源文件。
func (m *Manager) MigrateFromPlain() (*MigrationReport, error) {
	if err := m.requireSecurePrimary(); err != nil {
		return nil, err
	}
	files, err := m.plain.LegacyFiles()
	if err != nil {
		return nil, err
	}
	secure := m.secureBackends()
	report := &MigrationReport{}

	for _, lf := range files {
		r := lf.Ref
		value, err := m.plain.RetrieveAccount(r.Service, r.Key, r.Account)
		if err != nil {
			report.fail(r, "failed to read plaintext source", err)
			continue
		}

		existing, err := m.retrieveFrom(secure, r)
		switch {
		case err == nil && sameSecret(existing, value):
			m.logger.Info("credential already in secure storage, skipping", "ref", r.String())
			report.Skipped = append(report.Skipped, r)
			continue
		case err == nil:
			m.logger.Warn("secure copy differs from plaintext source, keeping secure copy", "ref", r.String())
			report.Skipped = append(report.Skipped, r)
			report.Conflicts = append(report.Conflicts, r)
			continue
		case !IsNotFound(err):
			report.fail(r, "failed to read secure storage", err)
			continue
		}

		if err := m.StoreAccount(r.Service, r.Key, r.Account, value); err != nil {
			report.fail(r, "failed to store in "+m.PrimaryBackend(), err)
			continue
		}
		got, err := m.retrieveFrom(secure, r)
		if err != nil {
			report.fail(r, "verification read failed", err)
			continue
		}
		if !sameSecret(got, value) {
			report.fail(r, "verification failed: stored value does not match plaintext source", nil)
			continue
		}
		m.logger.Info("credential migrated", "ref", r.String(), "backend", m.PrimaryBackend())
		report.Migrated = append(report.Migrated, r)
	}
	return report, nil
}

// CleanupPlain 删除已迁移（或已跳过）凭据的明文源文件。
// 删除前会再次校验安全后端中的值；confirm 非 nil 时逐个确认，返回 false 则保留该文件。
func (m *Manager) CleanupPlain(report *MigrationReport, confirm func(Ref) bool) ([]Ref, error) {
	if err := m.requireSecurePrimary(); err != nil {
		return nil, err
	}
	secure := m.secureBackends()
	candidates := append(append([]Ref(nil), report.Migrated...), report.Skipped...)

	var deleted []Ref
	var errs []error
	for _, r := range candidates {
		plainValue, err := m.plain.RetrieveAccount(r.Service, r.Key, r.Account)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		secureValue, err := m.retrieveFrom(secure, r)
		if err != nil || !sameSecret(plainValue, secureValue) {
			m.logger.Warn("secure copy could not be verified, keeping plaintext file", "ref", r.String())
			continue
		}
		if confirm != nil && !confirm(r) {
			continue
		}
		if err := m.plain.DeleteAccount(r.Service, r.Key, r.Account); err != nil {
			errs = append(errs, err)
			continue
		}
		m.logger.Info("plaintext credential removed", "ref", r.String())
		deleted = append(deleted, r)
	}
	if len(errs) > 0 {
		return deleted, errs[0]
	}
	return deleted, nil
}
