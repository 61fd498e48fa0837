package kernel

// Starts forwarding interrupts to the evaluator. Interrupts received before
// the evaluator booted are discarded. The relay runs until the interrupt
// channel is closed.
func (s *Session) startInterruptRelay() {
	interrupts := s.cfg.Interrupts
	if interrupts == nil {
		return
	}
drain:
	for {
		select {
		case <-interrupts:
		default:
			break drain
		}
	}
	ev := s.ev
	go func() {
		for range interrupts {
			logger.Println("forwarding interrupt")
			if err := ev.Interrupt(); err != nil {
				logger.Println("cannot interrupt evaluator:", err)
			}
		}
	}()
}
