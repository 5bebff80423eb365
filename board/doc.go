// Package board implements the host side of one packed serial board.
//
// A Board owns a serial port and walks the board's self-description after connecting:
//
//	defineAdapter        -> detailAdapter        (name, description, thing count)
//	defineThingByIdx(i)  -> detailThingByIdx     (type, name, property count)
//	definePropertyByIdx  -> detailPropertyByIdx  (type, name, current value), for each property
//	pair(i)              -> paired               (thing i is revealed to the Directory)
//
// Exactly one enumeration request is outstanding at a time, and every response must match the
// cursor: a response for another index, or one that arrives in the wrong state, ends the session.
// A thing is revealed only after it is paired, in a single Directory transaction, so readers never
// observe a partially enumerated thing.
//
// Once things are revealed the board pushes propertyStatus frames whenever a value changes; the
// session forwards them to Directory.SetPropertyValue. SetProperty and GetProperty send requests
// whose effect is observed through those status frames.
//
// Any transport failure, response timeout or out-of-order response moves the board to
// Disconnected and revokes every thing it revealed.
//
// Example:
//
//	b, err := board.New(ctx, "/dev/ttyUSB0", dir, board.WithSettleDelay(2*time.Second))
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//
//	if err := b.Open(ctx); err != nil {
//		return err
//	}
//	if err := b.WaitState(ctx, board.Ready); err != nil {
//		return err
//	}
//	err = b.SetProperty(ctx, "BoardA-ttyUSB0-0", "on", true)
package board
