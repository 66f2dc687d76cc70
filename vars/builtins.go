package vars

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pithecene-io/bundleforge/variant"
)

// registerBuiltins installs the built-in variable catalogue from spec.md
// section 4.3. Every entry is lazy: its Provider is not invoked until the
// variable is first read, mirroring the extract-once-on-first-use pattern
// quarry/executor/embed.go uses for its embedded payload.
//
// The original engine sources folder paths from Windows shell APIs
// (SHGetFolderPath) that have no portable equivalent. This engine runs
// cross-platform, so folder builtins are derived from os.UserHomeDir,
// os.TempDir and XDG-style conventions instead; the variable names and
// semantics (what each folder is for) are preserved.
func registerBuiltins(s *Store) {
	str := func(name string, fn func() (string, error)) {
		s.registerRaw(&Variable{
			Name:         name,
			InternalType: Builtin,
			Provider: func() (*variant.Variant, error) {
				val, err := fn()
				if err != nil {
					return nil, err
				}
				v := variant.New()
				v.SetString(val)
				return v, nil
			},
		})
	}
	numeric := func(name string, fn func() (int64, error)) {
		s.registerRaw(&Variable{
			Name:         name,
			InternalType: Builtin,
			Provider: func() (*variant.Variant, error) {
				n, err := fn()
				if err != nil {
					return nil, err
				}
				v := variant.New()
				v.SetNumeric(n)
				return v, nil
			},
		})
	}
	version := func(name string, fn func() (uint64, error)) {
		s.registerRaw(&Variable{
			Name:         name,
			InternalType: Builtin,
			Provider: func() (*variant.Variant, error) {
				ver, err := fn()
				if err != nil {
					return nil, err
				}
				v := variant.New()
				v.SetVersion(ver)
				return v, nil
			},
		})
	}

	home := func() string {
		h, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return h
	}

	// Folder builtins.
	str("AdminToolsFolder", func() (string, error) { return filepath.Join(home(), ".local", "admintools"), nil })
	str("AppDataFolder", func() (string, error) { return filepath.Join(home(), ".config"), nil })
	str("CommonAppDataFolder", func() (string, error) { return "/etc", nil })
	str("CommonFiles64Folder", func() (string, error) { return "/usr/local/lib64", nil })
	str("CommonFilesFolder", func() (string, error) { return "/usr/local/lib", nil })
	str("CommonFiles6432Folder", func() (string, error) { return "/usr/local/lib", nil })
	str("DesktopFolder", func() (string, error) { return filepath.Join(home(), "Desktop"), nil })
	str("FavoritesFolder", func() (string, error) { return filepath.Join(home(), ".config", "favorites"), nil })
	str("FontsFolder", func() (string, error) { return filepath.Join(home(), ".local", "share", "fonts"), nil })
	str("LocalAppDataFolder", func() (string, error) { return filepath.Join(home(), ".local", "share"), nil })
	str("MyPicturesFolder", func() (string, error) { return filepath.Join(home(), "Pictures"), nil })
	str("PersonalFolder", func() (string, error) { return filepath.Join(home(), "Documents"), nil })
	str("ProgramFiles64Folder", func() (string, error) { return "/usr/local/bin64", nil })
	str("ProgramFilesFolder", func() (string, error) { return "/usr/local/bin", nil })
	str("ProgramFiles6432Folder", func() (string, error) { return "/usr/local/bin", nil })
	str("ProgramMenuFolder", func() (string, error) { return filepath.Join(home(), ".local", "share", "applications"), nil })
	str("SendToFolder", func() (string, error) { return filepath.Join(home(), ".local", "share", "sendto"), nil })
	str("StartMenuFolder", func() (string, error) { return filepath.Join(home(), ".local", "share", "applications"), nil })
	str("StartupFolder", func() (string, error) { return filepath.Join(home(), ".config", "autostart"), nil })
	str("SystemFolder", func() (string, error) { return "/usr/bin", nil })
	str("System64Folder", func() (string, error) { return "/usr/lib64", nil })
	str("TemplateFolder", func() (string, error) { return filepath.Join(home(), "Templates"), nil })
	str("TempFolder", func() (string, error) { return os.TempDir(), nil })
	str("WindowsFolder", func() (string, error) { return "/usr", nil })
	str("WindowsVolume", func() (string, error) { return "/", nil })

	// Environment and identity builtins.
	str("ComputerName", func() (string, error) { return os.Hostname() })
	str("Date", func() (string, error) { return time.Now().Format("2006-01-02"), nil })
	str("InstallerName", func() (string, error) { return "bundleforge", nil })
	str("InstallerVersion", func() (string, error) { return "5.0.0", nil })
	str("LogonUser", func() (string, error) {
		if u := os.Getenv("USER"); u != "" {
			return u, nil
		}
		return os.Getenv("USERNAME"), nil
	})

	version("OSVersion", func() (uint64, error) { return osVersion(), nil })
	version("OSVersion64", func() (uint64, error) { return osVersion(), nil })
	version("ServicePackLevel", func() (uint64, error) { return 0, nil })

	numeric("SystemLanguageID", func() (int64, error) { return 1033, nil })
	numeric("UserLanguageID", func() (int64, error) { return 1033, nil })
	numeric("UserUILanguageID", func() (int64, error) { return 1033, nil })

	numeric("Privileged", func() (int64, error) {
		if os.Geteuid() == 0 {
			return 1, nil
		}
		return 0, nil
	})
	numeric("RebootPending", func() (int64, error) { return 0, nil })
	numeric("CompatibilityMode", func() (int64, error) { return 0, nil })
	numeric("TerminalServer", func() (int64, error) { return 0, nil })
	numeric("NTProductType", func() (int64, error) { return 1, nil })
	numeric("NTSuiteBackOffice", func() (int64, error) { return 0, nil })
	numeric("NTSuiteDataCenter", func() (int64, error) { return 0, nil })
	numeric("NTSuiteEnterprise", func() (int64, error) { return 0, nil })
	numeric("NTSuitePersonal", func() (int64, error) { return 0, nil })
	numeric("NTSuiteSmallBusiness", func() (int64, error) { return 0, nil })
	numeric("NTSuiteSmallBusinessRestricted", func() (int64, error) { return 0, nil })
	numeric("NTSuiteWebServer", func() (int64, error) { return 0, nil })
	str("ProcessorArchitecture", func() (string, error) { return runtime.GOARCH, nil })

	// Engine-managed Bundle* variables: these are registered as Builtin
	// because the engine itself (not arbitrary callers) sets them during
	// startup and each phase transition, via OverrideBuiltin.
	overridable := []string{
		"BundleAction",
		"BundleInstalled",
		"BundleElevated",
		"BundleUILevel",
		"BundleForcedRestartPackage",
		"BundleActiveParent",
		"BundleProviderKey",
		"BundleSourceProcessPath",
		"BundleSourceProcessFolder",
		"BundleTag",
		"BundleVersion",
		"BundleExecutePackageCacheFolder",
		"BundleExecutePackageAction",
	}
	for _, name := range overridable {
		s.registerRaw(&Variable{
			Name:         name,
			InternalType: Builtin,
			Value:        variant.New(),
		})
	}
}

func osVersion() uint64 {
	// No portable equivalent of GetVersionEx exists; expose the Go
	// runtime's reported OS/arch pairing packed into the low two fields
	// so the value is at least stable and inspectable.
	major, minor := 0, 0
	switch runtime.GOOS {
	case "linux":
		major, minor = 5, 0
	case "darwin":
		major, minor = 14, 0
	case "windows":
		major, minor = 10, 0
	}
	ver, err := variant.ParseVersion(fmt.Sprintf("%d.%d.0.0", major, minor))
	if err != nil {
		return 0
	}
	return ver
}
