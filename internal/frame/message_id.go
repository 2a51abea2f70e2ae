package frame

import "fmt"

// MessageID is the logical message family behind a (transmission-code,
// message-kind) pair. The same family appears on the futures and options
// partitions under different pairs, so several pairs share one id.
type MessageID uint16

const (
	MessageUnknown MessageID = 0

	MessageHeartbeat     MessageID = 1001 // M1001
	MessageSequenceReset MessageID = 1002 // M1002

	MessageProductBasic      MessageID = 1010 // I010
	MessageContractBasic     MessageID = 1011 // I011
	MessagePriceLimit        MessageID = 1012 // I012
	MessageTradeSummary      MessageID = 1024 // I024
	MessageHighLow           MessageID = 1025 // I025
	MessageOrderVolume       MessageID = 1030 // I030
	MessageBulletin          MessageID = 1050 // I050
	MessageUnderlying        MessageID = 1060 // I060
	MessageUnderlyingStatus  MessageID = 1064 // I064
	MessageClosing           MessageID = 1070 // I070
	MessageClosingSettlement MessageID = 1071 // I071
	MessageOpenInterest      MessageID = 1072 // I072
	MessageSpreadClosing     MessageID = 1073 // I073
	MessageOrderBookUpdate   MessageID = 1081 // I081
	MessageOrderBookSnapshot MessageID = 1083 // I083
	MessageSnapshotRefresh   MessageID = 1084 // I084
	MessageQuoteRequest      MessageID = 1100 // I100
	MessageProductMapping    MessageID = 1120 // I120
	MessageContractAdjust    MessageID = 1130 // I130
	MessageSystemNotice      MessageID = 1140 // I140
)

type tcmk struct{ tc, mk byte }

// messageTable is dense over the pairs documented in the reference
// manual; transmission codes '1'-'3' carry the futures partitions,
// '4'-'5' the options partitions.
var messageTable = map[tcmk]MessageID{
	{'0', '1'}: MessageHeartbeat,
	{'0', '2'}: MessageSequenceReset,

	{'1', '1'}: MessageProductBasic,
	{'1', '2'}: MessageOrderVolume,
	{'1', '3'}: MessageContractBasic,
	{'1', '4'}: MessageBulletin,
	{'1', '5'}: MessageUnderlying,
	{'1', '6'}: MessageProductMapping,
	{'1', '7'}: MessageContractAdjust,
	{'1', '8'}: MessageUnderlyingStatus,
	{'1', 'A'}: MessagePriceLimit,

	{'2', '1'}: MessageClosing,
	{'2', '2'}: MessageClosingSettlement,
	{'2', '3'}: MessageOpenInterest,
	{'2', '4'}: MessageQuoteRequest,
	{'2', 'A'}: MessageOrderBookUpdate,
	{'2', 'B'}: MessageOrderBookSnapshot,
	{'2', 'C'}: MessageSnapshotRefresh,
	{'2', 'D'}: MessageTradeSummary,
	{'2', 'E'}: MessageHighLow,

	{'3', '1'}: MessageClosing,
	{'3', '3'}: MessageSystemNotice,
	{'3', '4'}: MessageSpreadClosing,

	{'4', '1'}: MessageProductBasic,
	{'4', '2'}: MessageOrderVolume,
	{'4', '3'}: MessageContractBasic,
	{'4', '4'}: MessageBulletin,
	{'4', '5'}: MessageUnderlying,
	{'4', '6'}: MessageProductMapping,
	{'4', '7'}: MessageContractAdjust,
	{'4', '8'}: MessageUnderlyingStatus,
	{'4', 'A'}: MessagePriceLimit,

	{'5', '1'}: MessageClosing,
	{'5', '2'}: MessageClosingSettlement,
	{'5', '3'}: MessageOpenInterest,
	{'5', '4'}: MessageQuoteRequest,
	{'5', 'A'}: MessageOrderBookUpdate,
	{'5', 'B'}: MessageOrderBookSnapshot,
	{'5', 'C'}: MessageSnapshotRefresh,
	{'5', 'D'}: MessageTradeSummary,
	{'5', 'E'}: MessageHighLow,
}

// Identify maps a (transmission-code, message-kind) pair to its message
// family. Pairs outside the table return MessageUnknown.
func Identify(tc, mk byte) MessageID {
	return messageTable[tcmk{tc, mk}]
}

func (m MessageID) String() string {
	switch m {
	case MessageUnknown:
		return "unknown"
	case MessageHeartbeat, MessageSequenceReset:
		return fmt.Sprintf("M%d", uint16(m))
	default:
		return fmt.Sprintf("I%03d", uint16(m)%1000)
	}
}
