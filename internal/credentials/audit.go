package credentials

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Severity 是审计发现的严重程度。
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityInfo   Severity = "info"
)

// Finding 是一条审计发现；只描述文件与后端，不读取凭据内容。
type Finding struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Kind     string   `json:"kind" yaml:"kind"`
	Path     string   `json:"path,omitempty" yaml:"path,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

// BackendStatus 描述一个后端的状态。
type BackendStatus struct {
	Name      string `json:"name" yaml:"name"`
	Primary   bool   `json:"primary" yaml:"primary"`
	Available bool   `json:"available" yaml:"available"`
	Secure    bool   `json:"secure" yaml:"secure"`
}

// AuditReport 是安全审计结果。
type AuditReport struct {
	Backends []BackendStatus `json:"backends" yaml:"backends"`
	Findings []Finding       `json:"findings" yaml:"findings"`
}

// Issues 返回 high/medium 级别发现的数量。
func (a *AuditReport) Issues() int {
	n := 0
	for _, f := range a.Findings {
		if f.Severity != SeverityInfo {
			n++
		}
	}
	return n
}

type availabilityChecker interface {
	Available() bool
}

// Audit 检查：明文凭据文件、权限过宽的凭据文件/目录、首选后端是否安全、keyring 是否可达。
func (m *Manager) Audit() (*AuditReport, error) {
	report := &AuditReport{}
	for i, b := range m.backends {
		st := BackendStatus{Name: b.BackendName(), Primary: i == 0, Available: true}
		if c, ok := b.(availabilityChecker); ok {
			st.Available = c.Available()
		}
		_, isPlain := b.(*PlainStore)
		st.Secure = !isPlain
		if !st.Available {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityMedium, Kind: "backend_unavailable",
				Message: b.BackendName() + " backend is not reachable; lookups fall through to the next backend",
			})
		}
		report.Backends = append(report.Backends, st)
	}
	if len(m.backends) > 0 && !report.Backends[0].Secure {
		report.Findings = append(report.Findings, Finding{
			Severity: SeverityHigh, Kind: "insecure_storage",
			Message: "new credentials are written as plaintext; select keyring or encrypted storage",
		})
	}

	if m.plain != nil {
		files, err := m.plain.LegacyFiles()
		if err != nil {
			return nil, err
		}
		for _, lf := range files {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityHigh, Kind: "plaintext_credential", Path: lf.Path,
				Message: "plaintext credential for " + lf.Ref.String() + "; run 'plur-creds migrate'",
			})
		}
	}

	if runtime.GOOS != "windows" {
		dirs := map[string]bool{}
		if m.encrypted != nil && m.encrypted.Dir() != "" {
			dirs[m.encrypted.Dir()] = true
		}
		if m.plain != nil && m.plain.Dir() != "" {
			dirs[m.plain.Dir()] = true
		}
		var sorted []string
		for d := range dirs {
			sorted = append(sorted, d)
		}
		sort.Strings(sorted)
		for _, d := range sorted {
			findings, err := m.auditPermissions(d)
			if err != nil {
				return nil, err
			}
			report.Findings = append(report.Findings, findings...)
		}
	}

	if report.Issues() == 0 {
		report.Findings = append(report.Findings, Finding{
			Severity: SeverityInfo, Kind: "ok", Message: "no credential security issues found",
		})
	}
	return report, nil
}

// auditPermissions 只检查属于凭据的文件（加密文件与明文凭据文件），其余文件忽略。
func (m *Manager) auditPermissions(dir string) ([]Finding, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Finding
	for _, e := range entries {
		if e.IsDir() || !m.isCredentialFile(dir, e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o077 != 0 {
			out = append(out, Finding{
				Severity: SeverityHigh, Kind: "insecure_permissions", Path: filepath.Join(dir, e.Name()),
				Message: "credential file is accessible by group or others (mode " + info.Mode().Perm().String() + "); expected 0600",
			})
		}
	}
	return out, nil
}

func (m *Manager) isCredentialFile(dir, name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if m.encrypted != nil && dir == m.encrypted.Dir() && strings.HasSuffix(name, EncryptedExt) {
		return true
	}
	if m.plain != nil && dir == m.plain.Dir() {
		files, err := m.plain.LegacyFiles()
		if err != nil {
			return false
		}
		for _, lf := range files {
			if filepath.Base(lf.Path) == name {
				return true
			}
		}
	}
	return false
}
