package templates

import "github.com/t77yq/nitrite-automation/internal/model"

func builtin() []Template {
	return []Template{
		{
			Key:         "maintenance_complete",
			Name:        "Complete Maintenance",
			Description: "Full system maintenance pass",
			Language:    model.LanguagePowerShell,
			Tags:        []string{"maintenance"},
			Code: `# Complete system maintenance
Write-Host "=== System maintenance started ===" -ForegroundColor Green

Write-Host "[1/5] Cleaning temporary files..." -ForegroundColor Cyan
Get-ChildItem -Path $env:TEMP -ErrorAction SilentlyContinue | Remove-Item -Recurse -ErrorAction SilentlyContinue
Get-ChildItem -Path "C:\Windows\Temp" -ErrorAction SilentlyContinue | Remove-Item -Recurse -ErrorAction SilentlyContinue

Write-Host "[2/5] Flushing DNS cache..." -ForegroundColor Cyan
ipconfig /flushdns

Write-Host "[3/5] Scanning disk..." -ForegroundColor Cyan
chkdsk C: /scan

Write-Host "[4/5] Verifying system files..." -ForegroundColor Cyan
sfc /scannow

Write-Host "[5/5] Checking for updates..." -ForegroundColor Cyan
Start-Process "ms-settings:windowsupdate-action"

Write-Host "=== Maintenance finished ===" -ForegroundColor Green
`,
		},
		{
			Key:         "backup_drivers",
			Name:        "Driver Backup",
			Description: "Exports every installed driver",
			Language:    model.LanguagePowerShell,
			Tags:        []string{"backup", "drivers"},
			Code: `# Driver backup
$BackupPath = "$env:USERPROFILE\Desktop\Drivers_Backup_$(Get-Date -Format 'yyyy-MM-dd')"
New-Item -ItemType Directory -Path $BackupPath -Force | Out-Null

Write-Host "Exporting drivers to: $BackupPath" -ForegroundColor Green
Export-WindowsDriver -Online -Destination $BackupPath

Write-Host "Backup finished" -ForegroundColor Green
`,
		},
		{
			Key:         "network_reset",
			Name:        "Network Reset",
			Description: "Resets the whole network configuration",
			Language:    model.LanguageBatch,
			Tags:        []string{"network"},
			Code: `@echo off
echo === Network reset ===
echo.

echo [1/6] Resetting Winsock...
netsh winsock reset

echo [2/6] Resetting IP stack...
netsh int ip reset

echo [3/6] Releasing IP...
ipconfig /release

echo [4/6] Renewing IP...
ipconfig /renew

echo [5/6] Flushing DNS...
ipconfig /flushdns

echo [6/6] Resetting firewall...
netsh advfirewall reset

echo.
echo === Network reset finished ===
echo A REBOOT IS RECOMMENDED
`,
		},
		{
			Key:         "disk_cleanup",
			Name:        "Advanced Disk Cleanup",
			Description: "Deep disk cleanup",
			Language:    model.LanguagePowerShell,
			Tags:        []string{"maintenance", "disk"},
			Code: `# Advanced disk cleanup
Write-Host "=== Advanced disk cleanup ===" -ForegroundColor Green

Write-Host "[1/6] Windows Update components..." -ForegroundColor Cyan
Dism.exe /online /Cleanup-Image /StartComponentCleanup

Write-Host "[2/6] Temporary files..." -ForegroundColor Cyan
Get-ChildItem -Path $env:TEMP -ErrorAction SilentlyContinue | Remove-Item -Recurse -ErrorAction SilentlyContinue

Write-Host "[3/6] Error reports..." -ForegroundColor Cyan
Get-ChildItem -Path "C:\ProgramData\Microsoft\Windows\WER" -ErrorAction SilentlyContinue | Remove-Item -Recurse -ErrorAction SilentlyContinue

Write-Host "[4/6] Delivery Optimization cache..." -ForegroundColor Cyan
Delete-DeliveryOptimizationCache -Force -ErrorAction SilentlyContinue

Write-Host "[5/6] Thumbnail cache..." -ForegroundColor Cyan
Remove-Item -Path "$env:LOCALAPPDATA\Microsoft\Windows\Explorer\thumbcache_*" -ErrorAction SilentlyContinue

Write-Host "[6/6] Recycle bin..." -ForegroundColor Cyan
Clear-RecycleBin -Force -ErrorAction SilentlyContinue

Write-Host "=== Cleanup finished ===" -ForegroundColor Green
`,
		},
		{
			Key:         "system_info_export",
			Name:        "System Information Export",
			Description: "Exports system information to a text file",
			Language:    model.LanguagePowerShell,
			Tags:        []string{"diagnostics"},
			Code: `# System information export
$OutputPath = "$env:USERPROFILE\Desktop\SystemInfo_$(Get-Date -Format 'yyyy-MM-dd_HH-mm').txt"

Write-Host "Exporting system information..." -ForegroundColor Green

systeminfo > $OutputPath

Add-Content -Path $OutputPath -Value "=== INSTALLED PROGRAMS ==="
Get-ItemProperty HKLM:\Software\Wow6432Node\Microsoft\Windows\CurrentVersion\Uninstall\* |
    Select-Object DisplayName, DisplayVersion, Publisher |
    Format-Table -AutoSize >> $OutputPath

Add-Content -Path $OutputPath -Value "=== DRIVERS ==="
Get-WindowsDriver -Online |
    Select-Object Driver, ClassName, ProviderName, Date, Version |
    Format-Table -AutoSize >> $OutputPath

Add-Content -Path $OutputPath -Value "=== SERVICES ==="
Get-Service |
    Select-Object Name, DisplayName, Status, StartType |
    Format-Table -AutoSize >> $OutputPath

Write-Host "Export finished: $OutputPath" -ForegroundColor Green
`,
		},
		{
			Key:         "performance_optimization",
			Name:        "Performance Optimization",
			Description: "Tweaks that improve responsiveness",
			Language:    model.LanguagePowerShell,
			Tags:        []string{"performance"},
			Code: `# Performance optimization
Write-Host "=== Performance optimization ===" -ForegroundColor Green

Write-Host "[1/5] Visual effects..." -ForegroundColor Cyan
Set-ItemProperty -Path "HKCU:\Software\Microsoft\Windows\CurrentVersion\Explorer\VisualEffects" -Name "VisualFXSetting" -Value 2

Write-Host "[2/5] Services..." -ForegroundColor Cyan
Stop-Service -Name "SysMain" -Force
Set-Service -Name "SysMain" -StartupType Disabled

Write-Host "[3/5] Cortana..." -ForegroundColor Cyan
Set-ItemProperty -Path "HKLM:\SOFTWARE\Policies\Microsoft\Windows\Windows Search" -Name "AllowCortana" -Value 0

Write-Host "[4/5] Telemetry..." -ForegroundColor Cyan
Set-ItemProperty -Path "HKLM:\SOFTWARE\Policies\Microsoft\Windows\DataCollection" -Name "AllowTelemetry" -Value 0

Write-Host "[5/5] High performance power plan..." -ForegroundColor Cyan
powercfg /setactive SCHEME_MIN

Write-Host "=== Optimization finished ===" -ForegroundColor Green
Write-Host "A REBOOT IS RECOMMENDED" -ForegroundColor Yellow
`,
		},
	}
}
