package ctrl

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ftl/cellbroadcast/cell"
	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/position"
)

func requestSingleLine(ctx context.Context, requester cell.Requester, request string, expression *regexp.Regexp) ([]string, error) {
	responses, err := requester.Request(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(responses) < 1 {
		return nil, fmt.Errorf("no response received")
	}
	response := strings.ToUpper(strings.TrimSpace(responses[0]))
	parts := expression.FindStringSubmatch(response)
	if parts == nil {
		return nil, fmt.Errorf("unexpected response: %s", responses[0])
	}
	return parts, nil
}

// SetMessageMode according to 3GPP TS 27.005 3.2.3
func SetMessageMode(mode MessageMode) string {
	return fmt.Sprintf("AT+CMGF=%d", mode)
}

var requestMessageModeResponse = regexp.MustCompile(`^\+CMGF: (\d+)$`)

// RequestMessageMode reads the current message mode according to 3GPP TS 27.005 3.2.3
func RequestMessageMode(ctx context.Context, requester cell.Requester) (MessageMode, error) {
	parts, err := requestSingleLine(ctx, requester, "AT+CMGF?", requestMessageModeResponse)
	if err != nil {
		return 0, err
	}
	result, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return MessageMode(result), nil
}

// SelectBroadcastChannels according to 3GPP TS 27.005 3.3.4, all data coding schemes are accepted.
// Without channels, all channels are accepted.
func SelectBroadcastChannels(channels []int) string {
	if len(channels) == 0 {
		return `AT+CSCB=1,"",""`
	}
	return fmt.Sprintf(`AT+CSCB=0,"%s",""`, FormatChannels(channels))
}

var requestBroadcastChannelsResponse = regexp.MustCompile(`^\+CSCB: (\d),"([0-9,\-]*)","[0-9,\-]*"$`)

// RequestBroadcastChannels reads the accepted broadcast channels according to 3GPP TS 27.005 3.3.4
func RequestBroadcastChannels(ctx context.Context, requester cell.Requester) ([]int, error) {
	parts, err := requestSingleLine(ctx, requester, "AT+CSCB?", requestBroadcastChannelsResponse)
	if err != nil {
		return nil, err
	}
	if parts[1] != "0" {
		return nil, fmt.Errorf("channels are not accepted but rejected: %s", parts[0])
	}
	return ParseChannels(parts[2])
}

// FormatChannels returns the given channels as sorted list of ranges, e.g. "50,4370-4383".
func FormatChannels(channels []int) string {
	sorted := slices.Clone(channels)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	ranges := make([]string, 0, len(sorted))
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		if i == j {
			ranges = append(ranges, strconv.Itoa(sorted[i]))
		} else {
			ranges = append(ranges, fmt.Sprintf("%d-%d", sorted[i], sorted[j]))
		}
		i = j + 1
	}
	return strings.Join(ranges, ",")
}

// ParseChannels is the counterpart of FormatChannels.
func ParseChannels(s string) ([]int, error) {
	var result []int
	if strings.TrimSpace(s) == "" {
		return result, nil
	}
	for _, part := range strings.Split(s, ",") {
		first, last, isRange := strings.Cut(strings.TrimSpace(part), "-")
		from, err := strconv.Atoi(first)
		if err != nil {
			return nil, fmt.Errorf("invalid channel %q: %w", part, err)
		}
		to := from
		if isRange {
			to, err = strconv.Atoi(last)
			if err != nil {
				return nil, fmt.Errorf("invalid channel range %q: %w", part, err)
			}
		}
		if to < from {
			return nil, fmt.Errorf("invalid channel range %q", part)
		}
		for channel := from; channel <= to; channel++ {
			result = append(result, channel)
		}
	}
	return result, nil
}

// EnableBroadcastIndications routes received broadcasts directly to the terminal as +CBM, see 3GPP TS 27.005 3.4.1
func EnableBroadcastIndications() string {
	return "AT+CNMI=2,0,2,0,0"
}

// SetNumericOperatorFormat lets AT+COPS? report the operator as MCC and MNC, see 3GPP TS 27.007 7.3
func SetNumericOperatorFormat() string {
	return "AT+COPS=3,2"
}

var requestOperatorResponse = regexp.MustCompile(`^\+COPS: (\d+)(?:,(\d+),"([^"]*)"(?:,(\d+))?)?$`)

// RequestOperator reads the numeric id (MCC and MNC) of the current network according to 3GPP TS 27.007 7.3.
// It returns an empty string if the modem is not registered.
func RequestOperator(ctx context.Context, requester cell.Requester) (string, error) {
	parts, err := requestSingleLine(ctx, requester, "AT+COPS?", requestOperatorResponse)
	if err != nil {
		return "", err
	}
	if parts[2] == "" {
		return "", nil
	}
	if parts[2] != "2" {
		return "", fmt.Errorf("operator not in numeric format: %s", parts[0])
	}
	return parts[3], nil
}

// RegistrationDomain selects the registration command according to 3GPP TS 27.007 7.2, 10.1.20, 10.1.22
type RegistrationDomain string

// All supported registration domains
const (
	CircuitSwitched RegistrationDomain = "CREG"
	PacketSwitched  RegistrationDomain = "CGREG"
	EPS             RegistrationDomain = "CEREG"
)

func (d RegistrationDomain) defaultTechnology() cell.Technology {
	switch d {
	case PacketSwitched:
		return cell.UMTS
	case EPS:
		return cell.LTE
	default:
		return cell.GSM
	}
}

// EnableRegistrationLocation lets all registration commands report location area and cell id.
func EnableRegistrationLocation() []string {
	return []string{
		fmt.Sprintf("AT+%s=2", CircuitSwitched),
		fmt.Sprintf("AT+%s=2", PacketSwitched),
		fmt.Sprintf("AT+%s=2", EPS),
	}
}

var requestRegistrationResponse = regexp.MustCompile(`^\+C(?:G|E)?REG: \d,(\d)(?:,"?([0-9A-F]*)"?,"?([0-9A-F]*)"?(?:,(\d+))?)?(?:,.*)?$`)

// RequestRegistration reads the registration status and serving cell of the given domain. The cell
// identity is nil if the modem does not report it.
func RequestRegistration(ctx context.Context, requester cell.Requester, domain RegistrationDomain) (RegistrationStatus, *cell.Identity, error) {
	parts, err := requestSingleLine(ctx, requester, fmt.Sprintf("AT+%s?", domain), requestRegistrationResponse)
	if err != nil {
		return 0, nil, err
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, nil, err
	}
	if parts[2] == "" && parts[3] == "" {
		return RegistrationStatus(status), nil, nil
	}

	identity := &cell.Identity{
		Technology: domain.defaultTechnology(),
		LAC:        parseHexOrUnknown(parts[2]),
		CID:        parseHexOrUnknown(parts[3]),
	}
	if parts[4] != "" {
		act, err := strconv.Atoi(parts[4])
		if err != nil {
			return 0, nil, err
		}
		identity.Technology = technologyByAccessTechnology(act, identity.Technology)
	}
	return RegistrationStatus(status), identity, nil
}

func parseHexOrUnknown(s string) int {
	if s == "" {
		return cell.Unknown
	}
	result, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return cell.Unknown
	}
	return int(result)
}

// technologyByAccessTechnology maps <AcT> according to 3GPP TS 27.007 7.3
func technologyByAccessTechnology(act int, fallback cell.Technology) cell.Technology {
	switch act {
	case 0, 1, 3, 8:
		return cell.GSM
	case 2, 4, 5, 6:
		return cell.UMTS
	case 7, 9, 10:
		return cell.LTE
	case 11, 12, 13:
		return cell.NR
	default:
		return fallback
	}
}

var gpsPositionResponse = regexp.MustCompile(`^\+GPSPOS: (\d{2}):(\d{2}):(\d{2}),([NS]): (\d+)_(\d+\.\d+),([EW]): (\d+)_(\d+\.\d+),(\d+)$`)

// RequestGPSPosition reads the current position of the modem's GNSS receiver. The fix is timestamped
// with the reported UTC time on the current day. It returns position.ErrNoFix if no satellites are in use.
func RequestGPSPosition(ctx context.Context, requester cell.Requester) (position.Fix, error) {
	responses, err := requester.Request(ctx, "AT+GPSPOS?")
	if err != nil {
		return position.Fix{}, err
	}
	if len(responses) < 1 {
		return position.Fix{}, fmt.Errorf("no response received")
	}
	response := strings.ToUpper(strings.TrimSpace(responses[0]))
	if strings.HasSuffix(response, "NO FIX") || strings.HasSuffix(response, "NO DATA") {
		return position.Fix{}, position.ErrNoFix
	}
	parts := gpsPositionResponse.FindStringSubmatch(response)
	if len(parts) != 11 {
		return position.Fix{}, fmt.Errorf("unexpected response: %s", responses[0])
	}

	satellites, _ := strconv.Atoi(parts[10])
	if satellites == 0 {
		return position.Fix{}, position.ErrNoFix
	}
	latDegrees, _ := strconv.ParseFloat(parts[5], 64)
	latMinutes, _ := strconv.ParseFloat(parts[6], 64)
	lngDegrees, _ := strconv.ParseFloat(parts[8], 64)
	lngMinutes, _ := strconv.ParseFloat(parts[9], 64)
	hour, _ := strconv.Atoi(parts[1])
	minute, _ := strconv.Atoi(parts[2])
	second, _ := strconv.Atoi(parts[3])

	now := time.Now().UTC()
	return position.Fix{
		Position: geo.LatLng{
			Lat: degreesMinutesToDecimalDegrees(parts[4], latDegrees, latMinutes),
			Lng: degreesMinutesToDecimalDegrees(parts[7], lngDegrees, lngMinutes),
		},
		Time: time.Date(now.Year(), now.Month(), now.Day(), hour, minute, second, 0, time.UTC),
	}, nil
}

func degreesMinutesToDecimalDegrees(direction string, degrees float64, minutes float64) float64 {
	result := degrees + minutes/60
	if direction == "S" || direction == "W" {
		return -result
	}
	return result
}
