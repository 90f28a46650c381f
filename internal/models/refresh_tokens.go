package models

import "slices"

// RefreshTokenState tracks which refresh token ids a user can still redeem
// and which token belongs to which device. Every command returns a new value;
// the receiver is never modified.
type RefreshTokenState struct {
	ValidTokenIDs []string          `json:"validTokenIds"`
	DeviceTokens  map[string]string `json:"deviceTokens"`
}

// Contains reports whether tokenID is currently redeemable.
func (s RefreshTokenState) Contains(tokenID string) bool {
	return tokenID != "" && slices.Contains(s.ValidTokenIDs, tokenID)
}

// TokenForDevice returns the token id mapped to deviceID.
func (s RefreshTokenState) TokenForDevice(deviceID string) (string, bool) {
	tokenID, ok := s.DeviceTokens[deviceID]
	return tokenID, ok
}

// Devices returns the device ids holding a token.
func (s RefreshTokenState) Devices() []string {
	devices := make([]string, 0, len(s.DeviceTokens))
	for device := range s.DeviceTokens {
		devices = append(devices, device)
	}
	slices.Sort(devices)
	return devices
}

// WithTokenAdded registers tokenID as valid and maps it to deviceID. Any token
// previously held by the device stops being valid.
func (s RefreshTokenState) WithTokenAdded(tokenID, deviceID string) RefreshTokenState {
	next := s.clone()
	if previous, ok := next.DeviceTokens[deviceID]; ok {
		next.ValidTokenIDs = slices.DeleteFunc(next.ValidTokenIDs, func(id string) bool { return id == previous })
	}
	if !slices.Contains(next.ValidTokenIDs, tokenID) {
		next.ValidTokenIDs = append(next.ValidTokenIDs, tokenID)
	}
	next.DeviceTokens[deviceID] = tokenID
	return next
}

// WithTokenRemoved drops tokenID and any device mapping pointing at it.
func (s RefreshTokenState) WithTokenRemoved(tokenID string) RefreshTokenState {
	next := s.clone()
	next.ValidTokenIDs = slices.DeleteFunc(next.ValidTokenIDs, func(id string) bool { return id == tokenID })
	for device, id := range next.DeviceTokens {
		if id == tokenID {
			delete(next.DeviceTokens, device)
		}
	}
	return next
}

// WithDeviceRemoved invalidates the token mapped to deviceID, if any.
func (s RefreshTokenState) WithDeviceRemoved(deviceID string) RefreshTokenState {
	tokenID, ok := s.DeviceTokens[deviceID]
	if !ok {
		return s.clone()
	}
	return s.WithTokenRemoved(tokenID)
}

// Cleared returns an empty state.
func (s RefreshTokenState) Cleared() RefreshTokenState {
	return RefreshTokenState{ValidTokenIDs: []string{}, DeviceTokens: map[string]string{}}
}

func (s RefreshTokenState) clone() RefreshTokenState {
	next := RefreshTokenState{
		ValidTokenIDs: slices.Clone(s.ValidTokenIDs),
		DeviceTokens:  make(map[string]string, len(s.DeviceTokens)),
	}
	if next.ValidTokenIDs == nil {
		next.ValidTokenIDs = []string{}
	}
	for device, id := range s.DeviceTokens {
		next.DeviceTokens[device] = id
	}
	return next
}
