// Package input pumps terminal events onto a dispatcher.
//
// A Pump owns the read side of a tcell screen. It runs on its own
// goroutine, converts each key, mouse, resize, paste and focus event, and
// posts it with BeginInvoke at the priority configured for its kind, so
// registered handlers always run on the dispatcher goroutine and in
// priority order with the rest of the application's work. Pending resize
// events are coalesced: a newer resize aborts the older one if it has not
// run yet.
//
//	screen, err := input.OpenScreen(cfg.Input)
//	if err != nil {
//	    return err
//	}
//	defer screen.Fini()
//
//	pump, _ := input.NewPump(screen, d, input.WithConfig(cfg.Input), input.WithQuitKey(tcell.KeyCtrlC))
//	pump.OnEvent(func(ev input.Event) error {
//	    log.Debug().Str("event", ev.Name()).Msg("input")
//	    return nil
//	})
//	go pump.Run(ctx)
//	return d.Run()
package input
