package patterns

// Built-in tiered pattern sources. BLOCK is scanned first, then ASK, then
// ALLOW; the first match within a list wins and ends evaluation.
//
// Sources: OWASP Agentic AI Top 10, MITRE ATT&CK, PayloadsAllTheThings,
// Trail of Bits prompt-injection-to-RCE research.

// blockSources are outright dangerous operations (red tier).
var blockSources = []string{
	// ── Destructive file operations ──
	`\brm\s+-[rf]{1,2}\b`,
	`\brm\s+.*--recursive`,
	`\brm\s+.*--force`,
	`\bdel\s+/[fq]\b`,
	`\brmdir\s+/s\b`,
	`\b(mkfs|diskpart)\b|\bformat\s`,
	`\bdd\s+if=`,
	`>\s*/dev/sd[a-z]\b`,
	`\b(shutdown|reboot|poweroff)\b`,
	`:\(\)\s*\{.*\};\s*:`, // fork bomb

	// ── Data exfiltration ──
	`\bcurl\b.*\|\s*(ba)?sh\b`,
	`\bcurl\b.*(-d\b|-F\b|--data|--upload|--form|-T\b)`,
	`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`,
	`\bwget\b.*--post-(data|file)`,
	`/dev/tcp/`,

	// ── Reverse shells ──
	`\b(nc|ncat|netcat)\b.*-[el]\b`,
	`\bsocat\b`,
	`\bopenssl\b.*s_client`,
	`\bmkfifo\b`,

	// ── Dangerous eval / code injection ──
	`\beval\s*\$`,
	`\bbase64\s+-d\b.*\|\s*(ba)?sh\b`,

	// ── Privilege escalation ──
	`\bsudo\b`,
	`\bsu\s+-`,
	`\bnsenter\b`,
	`\bunshare\b`,
	`\b(mount|umount)\b`,
	`\b(capsh|setcap|getcap)\b`,

	// ── Dangerous path operations ──
	`\bchmod\s+[0-7]{3,4}\s+/`,
	`\bchown\b.*\s+/`,

	// ── Environment variable injection ──
	`\bLD_PRELOAD\s*=`,
	`\bDYLD_INSERT_LIBRARIES\s*=`,
	`/etc/ld\.so\.preload`,
	`\bBASH_ENV\s*=`,

	// ── Container escape ──
	`/var/run/docker\.sock|docker\.(sock|socket)`,
	`/proc/sys/(kernel|fs|net)/`,
	`/sys/(kernel|fs|class|devices)/`,

	// ── Crypto mining ──
	`\b(xmrig|cpuminer|minerd|cgminer|ethminer|nbminer)\b`,
	`stratum\+tcp://|stratum\+ssl://`,

	// ── Filter bypass ──
	`\bsed\b.*['"]/e\b`,
	`\bsort\b.*--compress-program`,
	`\b(rg|grep)\b.*--pre=`,
	`\$\{[^}]*@[PpEeAaKk]\}`,

	// ── Network abuse / reconnaissance ──
	`\b(nmap|masscan|zmap|rustscan)\b`,
	`\b(chisel|frp|ngrok|cloudflared|bore)\b`,

	// ── Persistence ──
	`\bcrontab\b`,
	`>\s*~/?\.(bashrc|bash_profile|profile|zshrc)`,
	`\btee\b.*\.(bashrc|bash_profile|profile|zshrc)`,

	// ── Environment variable dumping ──
	`^\s*env\s*$`,
	`^\s*env\s*\|`,
	`^\s*env\s*>\s`,
	`\bprintenv\b`,
}

// askSources require human confirmation (yellow tier).
var askSources = []string{
	// Writes and moves outside obvious safety
	`\bmv\b`,
	`\bcp\s+-[rf]`,
	`\brm\b`, // any rm not caught by BLOCK above
	`\bchmod\b`,
	`\bchown\b`,
	`\bln\s+-s`,

	// Network with side effects
	`\bcurl\b`,
	`\bwget\b`,
	`\bfetch\b`,
	`\b(ssh|scp|sftp)\b`,
	`\bnc\b`,
	`\btelnet\b`,

	// Package / system mutation
	`\b(apt|apt-get|yum|dnf|apk|brew)\s+(install|remove|upgrade|purge)\b`,
	`\b(pip3?|npm|yarn|pnpm|gem|cargo)\s+(install|add|remove|uninstall)\b`,
	`\bgit\s+push\b`,
	`\bgit\s+reset\s+--hard`,
	`\bdocker\b`,
	`\bkubectl\b`,
	`\bsystemctl\b`,
	`\bservice\b`,

	// Process control
	`\bkill\b`,
	`\b(killall|pkill)\b`,

	// Interpreters (arbitrary code)
	`\b(python[23]?|node|ruby|perl)\s+-e\b`,
	`\bsh\s+-c\b`,
	`\bbash\s+-c\b`,
}

// allowSources are read-only or otherwise safe commands (green tier).
var allowSources = []string{
	`^\s*ls\b`,
	`^\s*pwd\s*$`,
	`^\s*whoami\s*$`,
	`^\s*date\b`,
	`^\s*echo\b`,
	`^\s*cat\s`,
	`^\s*head\b`,
	`^\s*tail\b`,
	`^\s*wc\b`,
	`^\s*grep\b`,
	`^\s*find\s`,
	`^\s*which\b`,
	`^\s*file\s`,
	`^\s*stat\s`,
	`^\s*du\b`,
	`^\s*df\b`,
	`^\s*uname\b`,
	`^\s*uptime\s*$`,
	`^\s*hostname\s*$`,
	`^\s*id\s*$`,
	`^\s*ps\b`,
	`^\s*top\s+-b`,
	`^\s*git\s+(status|log|diff|show|branch|remote)\b`,
	`^\s*mkdir\b`,
	`^\s*touch\b`,
	`^\s*sort\b`,
	`^\s*uniq\b`,
	`^\s*cut\b`,
	`^\s*tr\b`,
	`^\s*sed\s+-n`,
	`^\s*awk\s`,
}
