/*
The package cb implements everything that is necessary to turn the raw cell broadcast PDUs delivered
by a GSM/UMTS/LTE modem into complete messages. This implementation is based on:
  [CB]   3GPP TS 23.041 V17.2.0 (2022-03), Technical realization of Cell Broadcast Service
  [DCS]  3GPP TS 23.038 V17.0.0 (2022-04), Alphabets and language-specific information
  [ATIS] ATIS-0700041, WEA 3.0 Device-Based Geo-Fencing

The most relevant chapters in [CB] are 9.4.1 (GSM format) and 9.4.2 (UMTS format).

Abbreviations:
PDU: Protocol Data Unit
DCS: Data Coding Scheme
WAC: Warning Area Coordinates
UDH: User Data Header

Restrictions:
Compressed message bodies and circle geometries in the WAC are not supported.
ETWS primary notifications are treated like any other GSM format PDU.

*/
package cb
