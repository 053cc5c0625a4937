package wbfs

// RemoveDisc clears the slot holding gameID and returns its blocks to the
// free bitmap. Per spec section 7's remove policy, this is idempotent: a
// gameID with no matching slot is not an error.
func (c *Container) RemoveDisc(gameID string) error {
	idx, s, err := c.findSlotByGameID(gameID)
	if err != nil {
		return err
	}
	if idx < 0 {
		return nil
	}

	for _, b := range s.usedBlocks() {
		c.free.MarkFree(b)
	}

	if err := c.writeSlot(idx, newSlot(c.lay.blocksPerDisc)); err != nil {
		return err
	}
	return c.flushFreeBitmap()
}
