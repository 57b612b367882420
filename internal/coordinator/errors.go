package coordinator

import "errors"

// ErrDatasourceMissing is returned by SynchronizeAuctionInfo when the
// datasource's private fetch comes back empty, both when there is no
// existing document and after an existing one has been marked cancelled
// (spec.md §7: DatasourceMissing).
var ErrDatasourceMissing = errors.New("coordinator: datasource has no data for this auction")
