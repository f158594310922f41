package session

const DefaultSourceLabel = defaultSourceLabel

func (c *Controller) RefreshTimer() { c.refreshTimer() }
