// Package ui provides terminal UI components for the timeline exporter
// This file demonstrates example usage of the UI components
package ui

/*
Example usage of the UI components:

// Terminal colors and output
ui.PrintLogo()                                   // Print ASCII logo
ui.PrintInfo("Target", "jack")                   // Cyan label, yellow value
ui.PrintSuccess("Export completed!")             // Green success message
ui.PrintError("Export failed", err)              // Red error message
ui.PrintWarning("Cooldown approaching")          // Yellow warning message
ui.PrintHighlight("[SESSION STARTED]")           // Magenta highlight message

// Session progress tracking
tracker := ui.NewStatusTracker(1000)
tracker.Update(scrolls, captured, rows)          // Latest engine counters
fmt.Println(tracker.StatusLine())                // One-line progress summary

// Console presenter wired to an export engine
console := ui.NewConsole(ui.ConsoleOptions{
    Notifier:   ui.NewNotifier(),
    MaxScrolls: cfg.Session.MaxScrolls,
})
engine, _ := exporter.New(cfg, username, exporter.Deps{
    Driver:    driver,
    Feed:      feed,
    Presenter: console,
})
console.Bind(engine)
go console.RunInteraction(ctx)                   // Answer prompts on stdin

// Notifications (cross-platform)
notifier := ui.NewNotifier()
notifier.SendNotification("Cooldown", "Resuming in 3m")
notifier.SendError("Rate limited", "Session paused")
notifier.SendSuccess("Export complete", "1532 tweets saved")

// Direct color usage
fmt.Printf("%s: %s\n", ui.Cyan("Account"), ui.Yellow("jack"))
fmt.Println(ui.Green("✓ Saved"))
fmt.Println(ui.Red("✗ Failed"))
*/
