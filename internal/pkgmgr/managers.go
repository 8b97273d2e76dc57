package pkgmgr

// DefaultManagers returns the built-in manager table. Each call returns
// fresh values so callers may adjust them.
func DefaultManagers() []*Manager {
	return []*Manager{
		{
			Name:             "uv",
			Category:         CategoryVendor,
			Languages:        []string{"python"},
			CheckCommand:     []string{"uv", "--version"},
			Install:          []string{"uv", "tool", "install", "{package}"},
			InstallPinned:    []string{"uv", "tool", "install", "{package}=={version}"},
			Upgrade:          []string{"uv", "tool", "upgrade", "{package}"},
			UpgradePinned:    []string{"uv", "tool", "install", "--force", "{package}=={version}"},
			UninstallCommand: []string{"uv", "tool", "uninstall", "{package}"},
		},
		{
			Name:             "pipx",
			Category:         CategoryVendor,
			Languages:        []string{"python"},
			CheckCommand:     []string{"pipx", "--version"},
			Install:          []string{"pipx", "install", "{package}"},
			InstallPinned:    []string{"pipx", "install", "{package}=={version}"},
			Upgrade:          []string{"pipx", "upgrade", "{package}"},
			UpgradePinned:    []string{"pipx", "install", "--force", "{package}=={version}"},
			UninstallCommand: []string{"pipx", "uninstall", "{package}"},
		},
		{
			Name:             "pip",
			Category:         CategoryVendor,
			Languages:        []string{"python"},
			CheckCommand:     []string{"pip", "--version"},
			Install:          []string{"pip", "install", "--user", "{package}"},
			InstallPinned:    []string{"pip", "install", "--user", "{package}=={version}"},
			Upgrade:          []string{"pip", "install", "--user", "--upgrade", "{package}"},
			UpgradePinned:    []string{"pip", "install", "--user", "--upgrade", "{package}=={version}"},
			UninstallCommand: []string{"pip", "uninstall", "-y", "{package}"},
		},
		{
			Name:             "cargo",
			Category:         CategoryVendor,
			Languages:        []string{"rust"},
			CheckCommand:     []string{"cargo", "--version"},
			Install:          []string{"cargo", "install", "{package}"},
			InstallPinned:    []string{"cargo", "install", "{package}", "--version", "{version}"},
			Upgrade:          []string{"cargo", "install", "--force", "{package}"},
			UpgradePinned:    []string{"cargo", "install", "--force", "{package}", "--version", "{version}"},
			UninstallCommand: []string{"cargo", "uninstall", "{package}"},
		},
		{
			Name:             "rustup",
			Category:         CategoryVendor,
			Languages:        []string{"rust"},
			CheckCommand:     []string{"rustup", "--version"},
			Install:          []string{"rustup", "component", "add", "{package}"},
			Upgrade:          []string{"rustup", "update"},
			UninstallCommand: []string{"rustup", "component", "remove", "{package}"},
		},
		{
			Name:             "npm",
			Category:         CategoryVendor,
			Languages:        []string{"node", "javascript", "typescript"},
			CheckCommand:     []string{"npm", "--version"},
			Install:          []string{"npm", "install", "-g", "{package}"},
			InstallPinned:    []string{"npm", "install", "-g", "{package}@{version}"},
			Upgrade:          []string{"npm", "install", "-g", "{package}@latest"},
			UpgradePinned:    []string{"npm", "install", "-g", "{package}@{version}"},
			UninstallCommand: []string{"npm", "uninstall", "-g", "{package}"},
		},
		{
			// nvm is a shell function; it is driven through sh. Package and
			// version are positional parameters, never part of the script.
			Name:             "nvm",
			Category:         CategoryVendor,
			Languages:        []string{"node"},
			CheckCommand:     []string{"sh", "-c", `[ -s "${NVM_DIR:-$HOME/.nvm}/nvm.sh" ]`},
			Install:          []string{"sh", "-c", `. "${NVM_DIR:-$HOME/.nvm}/nvm.sh" && nvm install "$1"`, "sh", "{package}"},
			InstallPinned:    []string{"sh", "-c", `. "${NVM_DIR:-$HOME/.nvm}/nvm.sh" && nvm install "$1"`, "sh", "{version}"},
			Upgrade:          []string{"sh", "-c", `. "${NVM_DIR:-$HOME/.nvm}/nvm.sh" && nvm install "$1" --reinstall-packages-from=current`, "sh", "{package}"},
			UninstallCommand: []string{"sh", "-c", `. "${NVM_DIR:-$HOME/.nvm}/nvm.sh" && nvm uninstall "$1"`, "sh", "{package}"},
		},
		{
			Name:             "pyenv",
			Category:         CategoryVendor,
			Languages:        []string{"python"},
			CheckCommand:     []string{"pyenv", "--version"},
			InstallPinned:    []string{"pyenv", "install", "--skip-existing", "{version}"},
			UpgradePinned:    []string{"pyenv", "install", "--skip-existing", "{version}"},
			UninstallCommand: []string{"pyenv", "uninstall", "-f", "{version}"},
		},
		{
			Name:             "rbenv",
			Category:         CategoryVendor,
			Languages:        []string{"ruby"},
			CheckCommand:     []string{"rbenv", "--version"},
			InstallPinned:    []string{"rbenv", "install", "--skip-existing", "{version}"},
			UpgradePinned:    []string{"rbenv", "install", "--skip-existing", "{version}"},
			UninstallCommand: []string{"rbenv", "uninstall", "-f", "{version}"},
		},
		{
			Name:             "gem",
			Category:         CategoryVendor,
			Languages:        []string{"ruby"},
			CheckCommand:     []string{"gem", "--version"},
			Install:          []string{"gem", "install", "--user-install", "{package}"},
			InstallPinned:    []string{"gem", "install", "--user-install", "{package}", "-v", "{version}"},
			Upgrade:          []string{"gem", "update", "--user-install", "{package}"},
			UpgradePinned:    []string{"gem", "install", "--user-install", "{package}", "-v", "{version}"},
			UninstallCommand: []string{"gem", "uninstall", "-x", "{package}"},
		},
		{
			Name:          "go",
			Category:      CategoryVendor,
			Languages:     []string{"go"},
			CheckCommand:  []string{"go", "version"},
			Install:       []string{"go", "install", "{package}@latest"},
			InstallPinned: []string{"go", "install", "{package}@v{version}"},
			Upgrade:       []string{"go", "install", "{package}@latest"},
			UpgradePinned: []string{"go", "install", "{package}@v{version}"},
		},
		{
			Name:          "github",
			Category:      CategoryGitHub,
			CheckCommand:  []string{"eget", "--version"},
			Install:       []string{"eget", "{package}", "--to", "{home}/.local/bin"},
			InstallPinned: []string{"eget", "{package}", "--tag", "{version}", "--to", "{home}/.local/bin"},
			Upgrade:       []string{"eget", "{package}", "--upgrade-only", "--to", "{home}/.local/bin"},
			UpgradePinned: []string{"eget", "{package}", "--tag", "{version}", "--to", "{home}/.local/bin"},
		},
		{
			// Homebrew refuses to run as root, so it is a system manager
			// that is not privileged.
			Name:             "brew",
			Category:         CategorySystem,
			CheckCommand:     []string{"brew", "--version"},
			Install:          []string{"brew", "install", "{package}"},
			InstallPinned:    []string{"brew", "install", "{package}@{version}"},
			Upgrade:          []string{"brew", "upgrade", "{package}"},
			UninstallCommand: []string{"brew", "uninstall", "{package}"},
		},
		{
			Name:             "apt",
			Category:         CategorySystem,
			CheckCommand:     []string{"apt-get", "--version"},
			Install:          []string{"apt-get", "install", "-y", "{package}"},
			InstallPinned:    []string{"apt-get", "install", "-y", "{package}={version}"},
			Upgrade:          []string{"apt-get", "install", "-y", "--only-upgrade", "{package}"},
			UpgradePinned:    []string{"apt-get", "install", "-y", "{package}={version}"},
			UninstallCommand: []string{"apt-get", "remove", "-y", "{package}"},
			Privileged:       true,
		},
		{
			Name:             "dnf",
			Category:         CategorySystem,
			CheckCommand:     []string{"dnf", "--version"},
			Install:          []string{"dnf", "install", "-y", "{package}"},
			InstallPinned:    []string{"dnf", "install", "-y", "{package}-{version}"},
			Upgrade:          []string{"dnf", "upgrade", "-y", "{package}"},
			UpgradePinned:    []string{"dnf", "install", "-y", "{package}-{version}"},
			UninstallCommand: []string{"dnf", "remove", "-y", "{package}"},
			Privileged:       true,
		},
		{
			Name:             "yum",
			Category:         CategorySystem,
			CheckCommand:     []string{"yum", "--version"},
			Install:          []string{"yum", "install", "-y", "{package}"},
			InstallPinned:    []string{"yum", "install", "-y", "{package}-{version}"},
			Upgrade:          []string{"yum", "update", "-y", "{package}"},
			UninstallCommand: []string{"yum", "remove", "-y", "{package}"},
			Privileged:       true,
		},
		{
			Name:             "pacman",
			Category:         CategorySystem,
			CheckCommand:     []string{"pacman", "--version"},
			Install:          []string{"pacman", "-S", "--noconfirm", "--needed", "{package}"},
			Upgrade:          []string{"pacman", "-S", "--noconfirm", "{package}"},
			UninstallCommand: []string{"pacman", "-R", "--noconfirm", "{package}"},
			Privileged:       true,
		},
		{
			Name:             "zypper",
			Category:         CategorySystem,
			CheckCommand:     []string{"zypper", "--version"},
			Install:          []string{"zypper", "--non-interactive", "install", "{package}"},
			InstallPinned:    []string{"zypper", "--non-interactive", "install", "{package}={version}"},
			Upgrade:          []string{"zypper", "--non-interactive", "update", "{package}"},
			UninstallCommand: []string{"zypper", "--non-interactive", "remove", "{package}"},
			Privileged:       true,
		},
		{
			Name:             "snap",
			Category:         CategorySystem,
			CheckCommand:     []string{"snap", "--version"},
			Install:          []string{"snap", "install", "{package}"},
			Upgrade:          []string{"snap", "refresh", "{package}"},
			UninstallCommand: []string{"snap", "remove", "{package}"},
			Privileged:       true,
		},
	}
}
